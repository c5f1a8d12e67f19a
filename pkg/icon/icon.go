// pkg/icon/icon.go - PNG to ICO conversion for shortcut icons.
//
// Shortcut actions may reference a .png icon; Windows shortcuts want an
// .ico. The converter scales the source into the standard size set and
// packs the results as PNG-compressed ICO entries (valid since Vista).

package icon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// DefaultSizes is the conventional icon size ladder.
var DefaultSizes = []int{16, 32, 48, 256}

type iconDirEntry struct {
	Width    uint8
	Height   uint8
	Colors   uint8
	Reserved uint8
	Planes   uint16
	BitCount uint16
	Size     uint32
	Offset   uint32
}

func scale(src image.Image, size int) image.Image {
	if b := src.Bounds(); b.Dx() == size && b.Dy() == size {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// ConvertPNG reads a PNG file and writes a multi-size ICO next to dst.
func ConvertPNG(srcPath, dstPath string, sizes []int) error {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening icon source %s: %w", srcPath, err)
	}
	src, err := png.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", srcPath, err)
	}

	images := make([][]byte, 0, len(sizes))
	for _, size := range sizes {
		var buf bytes.Buffer
		if err := png.Encode(&buf, scale(src, size)); err != nil {
			return fmt.Errorf("encoding %dpx icon: %w", size, err)
		}
		images = append(images, buf.Bytes())
	}

	var out bytes.Buffer
	// ICONDIR: reserved, type 1 (icon), count.
	binary.Write(&out, binary.LittleEndian, uint16(0))
	binary.Write(&out, binary.LittleEndian, uint16(1))
	binary.Write(&out, binary.LittleEndian, uint16(len(sizes)))

	offset := uint32(6 + 16*len(sizes))
	for i, size := range sizes {
		dim := uint8(size)
		if size >= 256 {
			dim = 0 // 0 means 256 in ICO directory entries
		}
		entry := iconDirEntry{
			Width:    dim,
			Height:   dim,
			Planes:   1,
			BitCount: 32,
			Size:     uint32(len(images[i])),
			Offset:   offset,
		}
		binary.Write(&out, binary.LittleEndian, entry)
		offset += entry.Size
	}
	for _, img := range images {
		out.Write(img)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(dstPath, out.Bytes(), 0644)
}
