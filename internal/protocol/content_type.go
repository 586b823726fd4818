package protocol

import "strings"

type ContentType struct {
	Ext    string
	MIME   string
	Binary bool
}

var (
	ContentHTML  = ContentType{Ext: "html", MIME: "text/html; charset=utf-8"}
	ContentPlain = ContentType{Ext: "txt", MIME: "text/plain; charset=utf-8"}
)

// extension -> content type; anything unknown is served as plain text
var contentTypes = map[string]ContentType{
	"html": ContentHTML,
	"htm":  ContentHTML,
	"txt":  ContentPlain,
	"css":  {Ext: "css", MIME: "text/css"},
	"js":   {Ext: "js", MIME: "text/javascript"},
	"json": {Ext: "json", MIME: "application/json"},
	"xml":  {Ext: "xml", MIME: "application/xml"},
	"svg":  {Ext: "svg", MIME: "image/svg+xml"},
	"jpg":  {Ext: "jpg", MIME: "image/jpeg", Binary: true},
	"jpeg": {Ext: "jpeg", MIME: "image/jpeg", Binary: true},
	"png":  {Ext: "png", MIME: "image/png", Binary: true},
	"gif":  {Ext: "gif", MIME: "image/gif", Binary: true},
	"ico":  {Ext: "ico", MIME: "image/x-icon", Binary: true},
	"webp": {Ext: "webp", MIME: "image/webp", Binary: true},
}

// ContentTypeFor resolves a file path or bare extension to its content type.
func ContentTypeFor(path string) ContentType {
	ext := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		ext = path[i+1:]
	}
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return ContentPlain
}
