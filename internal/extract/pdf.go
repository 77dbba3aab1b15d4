package extract

import (
	"bytes"
	"context"

	"github.com/ledongthuc/pdf"
	"github.com/m-mizutani/goerr/v2"
)

func readPDF(_ context.Context, path string) (text string, err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("malformed pdf", goerr.V("panic", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open pdf")
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", goerr.Wrap(err, "failed to read pdf text")
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", goerr.Wrap(err, "failed to read pdf text")
	}
	return buf.String(), nil
}
