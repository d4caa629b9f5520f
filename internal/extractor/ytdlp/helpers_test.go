// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ytdlp

import "github.com/ManuGH/clipgate/internal/domain/session/ports"

func portsRequest(dir string) ports.FetchRequest {
	return ports.FetchRequest{URL: "https://tiktok.com/v/1", OutputDir: dir}
}
