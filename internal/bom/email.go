package bom

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"partsmatch/internal"
)

var attachmentExts = map[string]struct{}{
	".csv": {}, ".tsv": {}, ".txt": {}, ".json": {}, ".xml": {},
	".xlsx": {}, ".xlsm": {}, ".html": {}, ".htm": {}, ".pdf": {},
}

// IsBOMAttachment reports whether name has an extension Read understands.
func IsBOMAttachment(name string) bool {
	_, ok := attachmentExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// readEmail reads every BOM attachment of a message. When none yields rows
// the HTML body is searched for a table.
func readEmail(raw []byte) ([]internal.BOMLine, Info, error) {
	info := Info{FileType: ".eml", Format: FormatUnknown}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, info, err
	}

	var lines []internal.BOMLine
	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if !IsBOMAttachment(name) {
			continue
		}
		got, attInfo, err := Read(name, att.Content)
		if err != nil || len(got) == 0 {
			continue
		}
		if info.Format == FormatUnknown {
			info.Format = attInfo.Format
			info.Headers = attInfo.Headers
		}
		for i := range got {
			got[i].Record = got[i].Record.Clone()
			got[i].Record["_attachment"] = name
		}
		lines = append(lines, got...)
	}

	if len(lines) == 0 && env.HTML != "" {
		records, header, err := readHTML(env.HTML)
		if err == nil && len(records) > 0 {
			lines = toLines(records, internal.SourceEmail)
			info.Headers = header
			info.Format = DetectFormat(header)
		}
	}
	for i := range lines {
		lines[i].LineNo = i + 1
	}
	return lines, info, nil
}
