package lframe

import(
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pbnjay/memory"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/tiff"
)

// Fraction of physical RAM beyond which we warn about the decoded
// frame set. Stacking wants everything resident.
const memoryWarnFraction = 0.75

// LoadFiles loads a frame sequence from image files and directories.
// Directories are expanded and sorted by name, so a numbered frame
// dump preserves capture order. Frame indices follow load order.
func LoadFiles(args ...string) (*FrameBuffer, error) {
	names := []string{}
	for _, arg := range args {
		item, err := os.Stat(arg)
		switch {
		case err != nil:
			return nil, fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			contents, err := os.ReadDir(arg)
			if err != nil {
				return nil, fmt.Errorf("readdir %s: %v", arg, err)
			}
			entries := []string{}
			for _, content := range contents {
				if !content.IsDir() && isFrameFile(content.Name()) {
					entries = append(entries, filepath.Join(arg, content.Name()))
				}
			}
			sort.Strings(entries)
			names = append(names, entries...)

		default:
			names = append(names, arg)
		}
	}

	fb := NewFrameBuffer()
	for _, name := range names {
		f, err := LoadFrameFile(len(fb.Frames), name)
		if err != nil {
			return nil, fmt.Errorf("loadfile %s: %v", name, err)
		}
		if err := fb.Add(f); err != nil {
			return nil, err
		}
	}

	if fb.Len() > 0 {
		// 4 bytes per sample once decoded into float planes
		need := uint64(fb.Len()) * uint64(fb.W) * uint64(fb.H) * uint64(fb.Channels) * 4
		if total := memory.TotalMemory(); total > 0 && float64(need) > memoryWarnFraction*float64(total) {
			log.Printf("Warning: %d frames need ~%d MB, close to the %d MB of physical RAM\n",
				fb.Len(), need>>20, total>>20)
		}
	}

	return fb, nil
}

func isFrameFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	}
	return false
}

// LoadFrameFile decodes one image file into a Frame. The EXIF capture
// timestamp is attached when present; a file without (readable) EXIF
// is fine, capture order comes from the index anyway.
func LoadFrameFile(index int, filename string) (*Frame, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r '%s': %v", filename, err)
	}
	img, _, err := image.Decode(reader)
	reader.Close()
	if err != nil {
		return nil, fmt.Errorf("decode '%s': %v", filename, err)
	}

	f, err := FrameFromImage(index, img)
	if err != nil { return nil, err }

	if reader, err := os.Open(filename); err == nil {
		if ex, err := exif.Decode(reader); err == nil {
			if t, err := ex.DateTime(); err == nil {
				f.Timestamp = t
			}
		}
		reader.Close()
	}

	return f, nil
}
