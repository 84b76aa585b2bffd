//go:build gocv

package video

import (
	"context"
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"
)

// CaptureSource decodes frames from a video file with OpenCV.
type CaptureSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	frames  int
}

// OpenVideo opens a video file or stream URL.
func OpenVideo(path string) (Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("failed to open video %s", path)
	}
	frames := int(capture.Get(gocv.VideoCaptureFrameCount))
	if frames <= 0 {
		frames = -1
	}
	return &CaptureSource{capture: capture, mat: gocv.NewMat(), frames: frames}, nil
}

// Next reads and converts the next frame. Empty frames are skipped.
func (c *CaptureSource) Next(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := c.capture.Read(&c.mat); !ok {
			return nil, io.EOF
		}
		if c.mat.Empty() {
			continue
		}
		img, err := c.mat.ToImage()
		if err != nil {
			return nil, fmt.Errorf("failed to convert frame: %w", err)
		}
		return img, nil
	}
}

// Len returns the frame count reported by the container, or -1.
func (c *CaptureSource) Len() int { return c.frames }

// Close releases the capture and frame buffer.
func (c *CaptureSource) Close() error {
	c.mat.Close()
	return c.capture.Close()
}
