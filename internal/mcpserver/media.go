package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	maxMediaSize  = 10 << 20
	maxRedirects  = 5
	fetchTimeout  = 30 * time.Second
	sniffedPrefix = 512
)

// mediaTypes maps the sniffed content types accepted into the media
// directory to the extension the saved file gets.
var mediaTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
}

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

type uploadResult struct {
	Path     string `json:"path"`
	Markdown string `json:"markdown"`
}

// media is a downloaded or decoded file whose type was read from its content.
type media struct {
	data []byte
	mime string
}

func (m media) ext() string { return mediaTypes[m.mime] }

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("url")
	if err != nil {
		return toolError(err), nil
	}
	m, err := loadMedia(ctx, src)
	if err != nil {
		return toolError(err), nil
	}
	name := mediaName(req.GetString("filename", ""), src, m.ext())

	logical, err := s.svc.SaveAttachment(ctx, name, m.data)
	if err != nil {
		return toolError(err), nil
	}
	out, _ := json.Marshal(uploadResult{Path: logical, Markdown: mediaLink(name, logical, m.mime)})
	return mcp.NewToolResultText(string(out)), nil
}

// loadMedia reads src, a base64 data URI or an http(s) URL, and checks that
// its content is one of the accepted media types.
func loadMedia(ctx context.Context, src string) (media, error) {
	var (
		data []byte
		err  error
	)
	if rest, ok := strings.CutPrefix(src, "data:"); ok {
		data, err = decodeData(rest)
	} else {
		data, err = download(ctx, src)
	}
	if err != nil {
		return media{}, err
	}
	if len(data) > maxMediaSize {
		return media{}, fmt.Errorf("media: %d bytes exceeds %d", len(data), maxMediaSize)
	}
	mime := sniff(data)
	if _, ok := mediaTypes[mime]; !ok {
		return media{}, fmt.Errorf("media: unsupported content %s (png, jpg, gif, webp, svg or pdf)", mime)
	}
	return media{data: data, mime: mime}, nil
}

// decodeData decodes the part of a data URI after "data:". The declared
// media type is ignored; the content decides.
func decodeData(rest string) ([]byte, error) {
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.New("media: data URI without a comma")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("media: only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("media: invalid base64: %w", err)
		}
	}
	return data, nil
}

func sniff(data []byte) string {
	head := data
	if len(head) > sniffedPrefix {
		head = head[:sniffedPrefix]
	}
	if bytes.Contains(head, []byte("<svg")) {
		return "image/svg+xml"
	}
	mime, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return mime
}

func download(ctx context.Context, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("media: invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("media: unsupported scheme %q", u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("media: invalid URL: %w", err)
	}
	resp, err := fetchClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media: download: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
}

// fetchClient refuses to connect to non-public addresses. The check runs on
// the dialed IP, so names resolving to internal hosts and redirects to them
// are caught as well.
func fetchClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !publicIP(ip) {
				return fmt.Errorf("media: blocked address %s", host)
			}
			return nil
		},
	}
	return &http.Client{
		Timeout:   fetchTimeout,
		Transport: &http.Transport{DialContext: dialer.DialContext},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("media: more than %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

func publicIP(ip net.IP) bool {
	return !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() &&
		!ip.IsLinkLocalUnicast() && !ip.IsLinkLocalMulticast()
}

// mediaName picks the file name under the media directory: the requested
// name, else the last URL segment, else a random one. The extension always
// follows the content so a media file is never saved under a document
// extension.
func mediaName(requested, src, ext string) string {
	name := requested
	if name == "" && !strings.HasPrefix(src, "data:") {
		if u, err := url.Parse(src); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.Trim(unsafeNameRe.ReplaceAllString(name, "_"), "._")
	if name == "" {
		name = uuid.NewString()
	}
	return name + ext
}

func mediaLink(name, logical, mime string) string {
	if strings.HasPrefix(mime, "image/") {
		return fmt.Sprintf("![%s](%s)", name, logical)
	}
	return fmt.Sprintf("[%s](%s)", name, logical)
}
