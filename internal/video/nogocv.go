//go:build !gocv

package video

// OpenVideo is unavailable without OpenCV.
func OpenVideo(path string) (Source, error) {
	return nil, ErrVideoUnsupported
}
