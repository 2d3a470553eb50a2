package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WritePreview stores msg under dir as <base>.txt, <base>.html and one file
// per inline asset, so a message can be reviewed without sending it.
func WritePreview(dir string, msg Message) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview directory %s: %w", dir, err)
	}
	base := strings.TrimSuffix(msg.AttachmentName, filepath.Ext(msg.AttachmentName))
	if base == "" {
		base = "message"
	}

	var written []string
	write := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write preview %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	text := "Subject: " + msg.Subject + "\nTo: " + strings.Join(msg.To, ", ") + "\n\n" + msg.PlainText + "\n"
	if err := write(base+".txt", []byte(text)); err != nil {
		return written, err
	}
	if msg.HTML != "" {
		// Point cid: references at the asset files written next to the page.
		html := msg.HTML
		for _, a := range msg.Inline {
			html = strings.ReplaceAll(html, "cid:"+a.CID, base+"-"+a.Filename)
		}
		if err := write(base+".html", []byte(html)); err != nil {
			return written, err
		}
	}
	for _, a := range msg.Inline {
		if err := write(base+"-"+a.Filename, a.Data); err != nil {
			return written, err
		}
	}
	return written, nil
}
