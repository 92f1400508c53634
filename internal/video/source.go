// Package video supplies single-channel frames to the optical-flow
// tracker, either from a directory of extracted image frames or
// straight from a video container through OpenCV's decoder.
package video

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Source is a seekable sequence of intensity frames.
type Source interface {
	// FrameCount returns the total number of frames.
	FrameCount() int
	// Gray returns frame i as a single-channel intensity image.
	Gray(i int) (*image.Gray, error)
	// Close releases any resources held by the source.
	Close() error
}

// Open returns a source for path: a DirSource when path is a directory
// of extracted frames, a FileSource otherwise.
func Open(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat video input: %w", err)
	}
	if info.IsDir() {
		return OpenDir(path)
	}
	return OpenFile(path)
}

// DirSource reads an extracted frame sequence from a directory. Files are
// ordered lexically, so extraction must zero-pad frame numbers.
type DirSource struct {
	dir   string
	files []string
}

// OpenDir scans dir for decodable image frames (png/jpeg).
func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("frame directory %s contains no frames", dir)
	}
	sort.Strings(files)

	return &DirSource{dir: dir, files: files}, nil
}

// FrameCount returns the number of frames found in the directory.
func (s *DirSource) FrameCount() int {
	return len(s.files)
}

// Gray decodes frame i and converts it to single-channel intensity.
func (s *DirSource) Gray(i int) (*image.Gray, error) {
	if i < 0 || i >= len(s.files) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, len(s.files))
	}

	img, err := imaging.Open(s.files[i])
	if err != nil {
		return nil, fmt.Errorf("decode frame %d (%s): %w", i, s.files[i], err)
	}

	return ToGray(img), nil
}

// Close is a no-op for directory sources; frames are opened per read.
func (s *DirSource) Close() error {
	return nil
}

// FileSource reads frames from a seekable video container through
// OpenCV's decoder.
type FileSource struct {
	cap    *gocv.VideoCapture
	frames int
}

// OpenFile opens a video file readable by OpenCV.
func OpenFile(path string) (*FileSource, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	frames := int(cap.Get(gocv.VideoCaptureFrameCount))
	if frames <= 0 {
		cap.Close()
		return nil, fmt.Errorf("video %s reports no frames", path)
	}
	return &FileSource{cap: cap, frames: frames}, nil
}

// FrameCount returns the number of frames the container reports.
func (s *FileSource) FrameCount() int {
	return s.frames
}

// Gray seeks to frame i, decodes it and converts it to single-channel
// intensity.
func (s *FileSource) Gray(i int) (*image.Gray, error) {
	if i < 0 || i >= s.frames {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, s.frames)
	}

	s.cap.Set(gocv.VideoCapturePosFrames, float64(i))
	frame := gocv.NewMat()
	defer frame.Close()
	if ok := s.cap.Read(&frame); !ok || frame.Empty() {
		return nil, fmt.Errorf("decode frame %d", i)
	}

	gray := frame
	if frame.Channels() > 1 {
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}
	img, err := gray.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame %d: %w", i, err)
	}
	return ToGray(img), nil
}

// Close releases the capture handle.
func (s *FileSource) Close() error {
	return s.cap.Close()
}

// ToGray converts any decoded frame to a single-channel intensity image.
// Flow computation only ever sees the luma channel.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}

	flat := imaging.Grayscale(img)
	b := flat.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcRow := flat.Pix[y*flat.Stride:]
		dstRow := gray.Pix[y*gray.Stride:]
		for x := 0; x < b.Dx(); x++ {
			// Grayscale output has R == G == B; take one channel.
			dstRow[x] = srcRow[x*4]
		}
	}
	return gray
}
