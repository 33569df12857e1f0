package naming

import (
	"path"
	"strings"
)

// Format is an image format tag such as "PNG" or "JPEG".
type Format string

const (
	FormatPNG  Format = "PNG"
	FormatJPEG Format = "JPEG"
	FormatGIF  Format = "GIF"
	FormatTIFF Format = "TIFF"
	FormatBMP  Format = "BMP"
	FormatDCX  Format = "DCX"
	FormatEPS  Format = "EPS"
	FormatIM   Format = "IM"
	FormatPCD  Format = "PCD"
	FormatPCX  Format = "PCX"
	FormatPDF  Format = "PDF"
	FormatPPM  Format = "PPM"
	FormatPSD  Format = "PSD"
	FormatXBM  Format = "XBM"
	FormatXPM  Format = "XPM"
)

var formatsByExt = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpe":  FormatJPEG,
	".jpeg": FormatJPEG,
	".gif":  FormatGIF,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".bmp":  FormatBMP,
	".dib":  FormatBMP,
	".dcx":  FormatDCX,
	".eps":  FormatEPS,
	".ps":   FormatEPS,
	".im":   FormatIM,
	".pcd":  FormatPCD,
	".pcx":  FormatPCX,
	".pdf":  FormatPDF,
	".pbm":  FormatPPM,
	".pgm":  FormatPPM,
	".ppm":  FormatPPM,
	".psd":  FormatPSD,
	".xbm":  FormatXBM,
	".xpm":  FormatXPM,
}

// InferFormat returns the format for filename's extension, or "" when the
// extension is missing or unknown.
func InferFormat(filename string) Format {
	_, ext := SplitExt(path.Base(filename))
	if ext == "" {
		return ""
	}
	return formatsByExt[strings.ToLower(ext)]
}
