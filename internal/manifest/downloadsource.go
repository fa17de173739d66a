package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DownloadKind enumerates the tagged download-source variants carried by an
// Archive. Downloading is an external collaborator (§6); the engine only
// needs to know which variant it is looking at well enough to hand it to one.
type DownloadKind int

const (
	DownloadUnknown DownloadKind = iota
	DownloadNexus
	DownloadGameFileSource
	DownloadGoogleDrive
	DownloadHTTP
	DownloadManual
	DownloadWabbajackCDN
)

func (k DownloadKind) String() string {
	switch k {
	case DownloadNexus:
		return "nexus"
	case DownloadGameFileSource:
		return "game-file-source"
	case DownloadGoogleDrive:
		return "google-drive"
	case DownloadHTTP:
		return "http"
	case DownloadManual:
		return "manual"
	case DownloadWabbajackCDN:
		return "wabbajack-cdn"
	default:
		return "unknown"
	}
}

// DownloadSource is a tagged variant of where an Archive's bytes originate.
// The wire discriminator is a "$type" field using the upstream
// "<ClassName>, Wabbajack.Lib"-shaped strings; the engine only matches on the
// class-name prefix, since the assembly suffix is collaborator noise.
type DownloadSource struct {
	Kind           DownloadKind
	Nexus          *NexusSource
	GameFileSource *GameFileSourceSource
	GoogleDrive    *GoogleDriveSource
	HTTP           *HTTPSource
	Manual         *ManualSource
	WabbajackCDN   *WabbajackCDNSource
}

type NexusSource struct {
	GameName    GameName `json:"GameName"`
	FileID      int      `json:"FileID"`
	ModID       int      `json:"ModID"`
	Author      *string  `json:"Author"`
	Description *string  `json:"Description"`
	ImageURL    *string  `json:"ImageURL"`
	IsNSFW      LenientBool `json:"IsNSFW"`
	Name        string   `json:"Name"`
	Version     string   `json:"Version"`
}

type GameFileSourceSource struct {
	GameVersion string   `json:"GameVersion"`
	Hash        string   `json:"Hash"`
	GameFile    string   `json:"GameFile"`
	Game        GameName `json:"Game"`
}

type GoogleDriveSource struct {
	ID string `json:"Id"`
}

type HTTPSource struct {
	Headers []string `json:"Headers"`
	URL     string   `json:"Url"`
}

type ManualSource struct {
	Prompt string `json:"Prompt"`
	URL    string `json:"Url"`
}

type WabbajackCDNSource struct {
	URL string `json:"Url"`
}

// typeTag mirrors the discriminator envelope every tagged variant in the
// modlist bundle carries.
type typeTag struct {
	Type string `json:"$type"`
}

func classNameOf(tag string) string {
	if i := strings.Index(tag, ","); i >= 0 {
		return tag[:i]
	}
	return tag
}

func (d *DownloadSource) UnmarshalJSON(data []byte) error {
	var tag typeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("decoding download source discriminator: %w", err)
	}
	switch name := classNameOf(tag.Type); {
	case strings.HasPrefix(name, "NexusDownloader"):
		d.Kind = DownloadNexus
		d.Nexus = new(NexusSource)
		return json.Unmarshal(data, d.Nexus)
	case strings.HasPrefix(name, "GameFileSourceDownloader"):
		d.Kind = DownloadGameFileSource
		d.GameFileSource = new(GameFileSourceSource)
		return json.Unmarshal(data, d.GameFileSource)
	case strings.HasPrefix(name, "GoogleDriveDownloader"):
		d.Kind = DownloadGoogleDrive
		d.GoogleDrive = new(GoogleDriveSource)
		return json.Unmarshal(data, d.GoogleDrive)
	case strings.HasPrefix(name, "HttpDownloader"):
		d.Kind = DownloadHTTP
		d.HTTP = new(HTTPSource)
		return json.Unmarshal(data, d.HTTP)
	case strings.HasPrefix(name, "ManualDownloader"):
		d.Kind = DownloadManual
		d.Manual = new(ManualSource)
		return json.Unmarshal(data, d.Manual)
	case strings.HasPrefix(name, "WabbajackCDNDownloader"):
		d.Kind = DownloadWabbajackCDN
		d.WabbajackCDN = new(WabbajackCDNSource)
		return json.Unmarshal(data, d.WabbajackCDN)
	default:
		d.Kind = DownloadUnknown
		return nil
	}
}
