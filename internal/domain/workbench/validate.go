package workbench

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
)

var (
	// ErrUnsupportedFile rejects uploads that are not delimited text.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrBadEncoding rejects text the backend cannot decode.
	ErrBadEncoding = errors.New("unsupported text encoding")
)

const sniffLen = 3072

// ValidateDataset checks that an upload looks like a delimited text
// dataset before any bytes cross the wire. It sniffs the content type
// and the character encoding from the head of the stream and returns a
// reader equivalent to the original.
func ValidateDataset(filename string, r io.Reader) (io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	head = head[:n]
	if n == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnsupportedFile, filename)
	}

	mt := mimetype.Detect(head)
	if !isDelimitedText(mt) {
		return nil, fmt.Errorf("%w: %s detected as %s", ErrUnsupportedFile, filename, mt.String())
	}

	if err := checkEncoding(head); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadEncoding, err)
	}

	return io.MultiReader(bytes.NewReader(head), r), nil
}

func isDelimitedText(mt *mimetype.MIME) bool {
	return mt.Is("text/csv") ||
		mt.Is("text/tab-separated-values") ||
		mt.Is("text/plain")
}

// checkEncoding accepts single-byte and UTF-8 text. UTF-16/32 and other
// wide encodings read as garbage rows backend-side, so they are turned
// away here with a usable message.
func checkEncoding(head []byte) error {
	res, err := chardet.NewTextDetector().DetectBest(head)
	if err != nil {
		// Too little signal to judge; let the backend try.
		return nil
	}

	charset := strings.ToUpper(res.Charset)
	switch {
	case charset == "UTF-8":
		return nil
	case strings.HasPrefix(charset, "ISO-8859"):
		return nil
	case strings.HasPrefix(charset, "WINDOWS-125"):
		return nil
	}
	return fmt.Errorf("detected charset %s", res.Charset)
}
