// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Static adapter serves requests from local files and directories.

package hemi

import (
	"errors"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
)

// StaticAdapter serves files under a web root. Files are sent with Response.Sendfile.
type StaticAdapter struct {
	// Assocs
	logger Logger
	// States
	webRoot     string            // root dir for web files and directories
	indexFile   string            // the file that will be used as index
	autoIndex   bool              // list files in directories if there is no index file?
	mimeTypes   map[string]string // defined mime types for file extensions
	defaultType string            // mime type for file extensions that are not defined in mimeTypes
}

func NewStaticAdapter(logger Logger) *StaticAdapter {
	a := new(StaticAdapter)
	a.logger = logger
	a.mimeTypes = staticDefaultMimeTypes
	return a
}

// Configure applies the [static] section.
func (a *StaticAdapter) Configure(c *Config) error {
	// webRoot
	c.ConfigureString("webRoot", &a.webRoot, func(value string) error {
		if info, err := os.Stat(value); err != nil {
			return err
		} else if !info.IsDir() {
			return errors.New("must be a directory")
		}
		return nil
	}, "")
	if a.webRoot == "" && c.Err() == nil {
		return errors.New("webRoot is required for static adapter")
	}
	a.webRoot = strings.TrimRight(a.webRoot, "/")

	// indexFile
	c.ConfigureString("indexFile", &a.indexFile, func(value string) error {
		if value != "" && !strings.Contains(value, "/") {
			return nil
		}
		return errors.New("must be a file name")
	}, "index.html")

	// autoIndex
	c.ConfigureBool("autoIndex", &a.autoIndex, false)

	// defaultType
	c.ConfigureString("defaultType", &a.defaultType, nil, "application/octet-stream")

	// mimeTypes, like "md=text/markdown; wasm=application/wasm"
	var mimeTypes []string
	c.ConfigureStringList("mimeTypes", &mimeTypes, func(value []string) error {
		for _, pair := range value {
			if ext, mimeType, ok := strings.Cut(pair, "="); !ok || ext == "" || mimeType == "" {
				return errors.New("must be ext=type pairs")
			}
		}
		return nil
	}, nil)
	if len(mimeTypes) > 0 {
		a.mimeTypes = make(map[string]string, len(staticDefaultMimeTypes)+len(mimeTypes))
		for ext, mimeType := range staticDefaultMimeTypes {
			a.mimeTypes[ext] = mimeType
		}
		for _, pair := range mimeTypes { // overwrite default
			ext, mimeType, _ := strings.Cut(pair, "=")
			a.mimeTypes[strings.TrimSpace(ext)] = strings.TrimSpace(mimeType)
		}
	}
	return c.Err()
}

func (a *StaticAdapter) Service(req *Request, resp *Response) error {
	if req.MethodCode()&(MethodGET|MethodHEAD) == 0 {
		resp.SetHeader("allow", "GET, HEAD")
		return staticSendText(resp, StatusMethodNotAllowed, "method not allowed")
	}
	userPath, err := url.PathUnescape(req.Path())
	if err != nil || !strings.HasPrefix(userPath, "/") || strings.IndexByte(userPath, 0) >= 0 {
		return staticSendText(resp, StatusBadRequest, "bad path")
	}
	isFile := !strings.HasSuffix(userPath, "/")
	cleanPath := path.Clean(userPath)
	fullPath := a.webRoot + cleanPath
	openPath := fullPath
	if !isFile {
		openPath = strings.TrimRight(fullPath, "/") + "/" + a.indexFile
	}

	info, err := os.Stat(openPath)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warnf("static stat error=%v", err)
			return staticSendText(resp, StatusInternalServerError, "internal server error")
		}
		if isFile { // file not found
			return staticSendText(resp, StatusNotFound, "not found")
		}
		if !a.autoIndex {
			return staticSendText(resp, StatusForbidden, "forbidden")
		}
		dir, err := os.Open(fullPath)
		if err != nil {
			if os.IsNotExist(err) { // directory not found
				return staticSendText(resp, StatusNotFound, "not found")
			}
			a.logger.Warnf("static open dir error=%v", err)
			return staticSendText(resp, StatusInternalServerError, "internal server error")
		}
		defer dir.Close()
		return a.listDir(dir, resp)
	}
	if info.IsDir() {
		resp.SetStatus(StatusFound)
		resp.SetHeader("location", strings.TrimRight(req.Path(), "/")+"/")
		resp.SetContentLength(0)
		return nil
	}
	if !info.Mode().IsRegular() {
		return staticSendText(resp, StatusForbidden, "forbidden")
	}

	contentType := a.defaultType
	if p := strings.LastIndexByte(openPath, '.'); p >= 0 && p > strings.LastIndexByte(openPath, '/') {
		if mimeType, ok := a.mimeTypes[strings.ToLower(openPath[p+1:])]; ok {
			contentType = mimeType
		}
	}
	modTime := info.ModTime().UTC()
	lastModified := modTime.Format(httpDateLayout)
	if since, ok := req.Header("if-modified-since"); ok && since == lastModified {
		resp.SetStatus(StatusNotModified)
		resp.SetHeader("last-modified", lastModified)
		return nil
	}
	resp.SetContentType(contentType)
	resp.SetHeader("last-modified", lastModified)
	resp.SetHeader("etag", `W/"`+strconv.FormatInt(modTime.Unix(), 16)+"-"+strconv.FormatInt(info.Size(), 16)+`"`)
	return resp.Sendfile(openPath, 0, info.Size())
}

func (a *StaticAdapter) listDir(dir *os.File, resp *Response) error {
	entries, err := dir.ReadDir(-1)
	if err != nil {
		a.logger.Warnf("static read dir error=%v", err)
		return staticSendText(resp, StatusInternalServerError, "internal server error")
	}
	resp.SetContentType("text/html; charset=utf-8")
	var page strings.Builder
	page.WriteString(`<table border="1">`)
	page.WriteString(`<tr><th>name</th><th>size(in bytes)</th><th>time</th></tr>`)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		var size, date string
		if info, err := entry.Info(); err == nil {
			size = strconv.FormatInt(info.Size(), 10)
			date = info.ModTime().UTC().Format(httpDateLayout)
		}
		page.WriteString(`<tr><td><a href="` + staticHTMLEscape(name) + `">` + staticHTMLEscape(name) + `</a></td><td>` + size + `</td><td>` + date + `</td></tr>`)
	}
	page.WriteString("</table>")
	_, err = resp.WriteString(page.String())
	return err
}

func staticSendText(resp *Response, status int16, text string) error {
	resp.SetStatus(status)
	resp.SetContentType("text/plain; charset=utf-8")
	resp.SetContentLength(int64(len(text)))
	_, err := resp.WriteString(text)
	return err
}

func staticHTMLEscape(s string) string { return staticHTMLEscaper.Replace(s) }

var staticHTMLEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

var staticDefaultMimeTypes = map[string]string{
	"7z":   "application/x-7z-compressed",
	"atom": "application/atom+xml",
	"bin":  "application/octet-stream",
	"bmp":  "image/x-ms-bmp",
	"css":  "text/css",
	"gif":  "image/gif",
	"htm":  "text/html",
	"html": "text/html",
	"ico":  "image/x-icon",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"js":   "application/javascript",
	"json": "application/json",
	"mp3":  "audio/mpeg",
	"mp4":  "video/mp4",
	"pdf":  "application/pdf",
	"png":  "image/png",
	"svg":  "image/svg+xml",
	"txt":  "text/plain",
	"wasm": "application/wasm",
	"webm": "video/webm",
	"webp": "image/webp",
	"xml":  "text/xml",
	"zip":  "application/zip",
}
