// internal/container/static.go
package container

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"webapp-server/internal/protocol"
	"webapp-server/internal/web"
)

func (c *Container) serveStatic(res web.Response, url string) (State, error) {
	if p, ok := c.locate(url); ok {
		if err := sendResource(res, p); err != nil {
			return Routed, err
		}
		return Responded, nil
	}
	if err := c.SendError(res, http.StatusNotFound); err != nil {
		return Routed, err
	}
	return Responded, nil
}

// locate maps url onto the application root, then the resource root.
func (c *Container) locate(url string) (string, bool) {
	rel := filepath.FromSlash(path.Clean("/" + url))
	for _, root := range []string{c.appRoot, c.resourceRoot} {
		if root == "" {
			continue
		}
		p := filepath.Join(root, rel)
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// SendError writes status code with the <code>.html page from the resource
// root, or a generated page when there is none.
func (c *Container) SendError(res web.Response, code int) error {
	res.SetStatus(code)
	res.SetHeader("Content-Type", protocol.ContentHTML.MIME)

	if c.resourceRoot != "" {
		f, err := os.Open(filepath.Join(c.resourceRoot, strconv.Itoa(code)+".html"))
		if err == nil {
			defer f.Close()
			return streamText(res, f)
		}
	}
	_, err := fmt.Fprintf(res, "<html><body><h1>%d %s</h1></body></html>", code, http.StatusText(code))
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	return nil
}

// sendResource streams binary types with an explicit Content-Length and
// text types write by write, terminated by connection close.
func sendResource(res web.Response, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("open resource: %w", err)
	}
	defer f.Close()

	ct := protocol.ContentTypeFor(p)
	res.SetHeader("Content-Type", ct.MIME)
	if !ct.Binary {
		return streamText(res, f)
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat resource: %w", err)
	}
	res.SetHeader("Content-Length", strconv.FormatInt(info.Size(), 10))
	if _, err := io.Copy(res, f); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	return nil
}

func streamText(w io.Writer, r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadSlice('\n')
		if len(line) > 0 {
			if _, werr := w.Write(line); werr != nil {
				return fmt.Errorf("%w: %v", protocol.ErrTransport, werr)
			}
		}
		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return nil
		default:
			return fmt.Errorf("read resource: %w", err)
		}
	}
}
