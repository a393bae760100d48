package stream

import "github.com/cjeanneret/camstream/internal/logic/frame"

const (
	// Boundary separates the parts of the MJPEG response.
	Boundary = "frame"

	// ContentType is the response media type for an MJPEG stream.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

	// PartContentType is the media type of every part.
	PartContentType = "image/jpeg"
)

var (
	partHeader  = []byte("--" + Boundary + "\r\nContent-Type: " + PartContentType + "\r\n\r\n")
	partTrailer = []byte("\r\n")
)

// EncodePart returns one multipart-replace chunk carrying f:
//
//	--frame\r\n
//	Content-Type: image/jpeg\r\n
//	\r\n
//	<frame bytes>\r\n
func EncodePart(f frame.Frame) []byte {
	out := make([]byte, 0, len(partHeader)+len(f)+len(partTrailer))
	out = append(out, partHeader...)
	out = append(out, f...)
	return append(out, partTrailer...)
}
