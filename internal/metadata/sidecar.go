package metadata

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"bibtag/internal/fileutil"
)

// SidecarExtension is appended to the source file name, so IMG_0042.CR3
// gains IMG_0042.CR3.xmp.
const SidecarExtension = ".xmp"

// SidecarPath returns the sidecar path for a source file.
func SidecarPath(sourcePath string) string {
	return sourcePath + SidecarExtension
}

type xmpMeta struct {
	XMLName xml.Name `xml:"x:xmpmeta"`
	NSX     string   `xml:"xmlns:x,attr"`
	RDF     xmpRDF   `xml:"rdf:RDF"`
}

type xmpRDF struct {
	NSRDF       string         `xml:"xmlns:rdf,attr"`
	Description xmpDescription `xml:"rdf:Description"`
}

type xmpDescription struct {
	About        string   `xml:"rdf:about,attr"`
	NSDC         string   `xml:"xmlns:dc,attr"`
	NSPhotoshop  string   `xml:"xmlns:photoshop,attr"`
	Subject      *xmpBag  `xml:"dc:subject>rdf:Bag,omitempty"`
	Instructions string   `xml:"photoshop:Instructions,omitempty"`
}

type xmpBag struct {
	Items []string `xml:"rdf:li"`
}

const xmpPacketHeader = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>` + "\n"
const xmpPacketFooter = "\n" + `<?xpacket end="w"?>` + "\n"

// sidecarContent is the portion of a sidecar we read and write.
type sidecarContent struct {
	Keywords     []string
	Instructions string
}

func renderSidecar(content sidecarContent) ([]byte, error) {
	doc := xmpMeta{
		NSX: "adobe:ns:meta/",
		RDF: xmpRDF{
			NSRDF: "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
			Description: xmpDescription{
				NSDC:         "http://purl.org/dc/elements/1.1/",
				NSPhotoshop:  "http://ns.adobe.com/photoshop/1.0/",
				Instructions: content.Instructions,
			},
		},
	}
	if len(content.Keywords) > 0 {
		doc.RDF.Description.Subject = &xmpBag{Items: content.Keywords}
	}
	encoded, err := xml.MarshalIndent(doc, "", " ")
	if err != nil {
		return nil, fmt.Errorf("sidecar encode: %w", err)
	}
	var buf strings.Builder
	buf.WriteString(xmpPacketHeader)
	buf.Write(encoded)
	buf.WriteString(xmpPacketFooter)
	return []byte(buf.String()), nil
}

// readSidecar loads the keywords and instructions from an existing sidecar.
// A missing file yields empty content.
func readSidecar(path string) (sidecarContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sidecarContent{}, nil
		}
		return sidecarContent{}, fmt.Errorf("sidecar read: %w", err)
	}
	return parseSidecar(data)
}

// parseSidecar walks the XML tokens rather than unmarshaling into structs,
// so sidecars written by other tools with different namespace prefixes still
// parse.
func parseSidecar(data []byte) (sidecarContent, error) {
	var content sidecarContent
	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	inSubject := false
	var current string
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			current = t.Name.Local
			if current == "subject" {
				inSubject = true
			}
		case xml.EndElement:
			if t.Name.Local == "subject" {
				inSubject = false
			}
			current = ""
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch {
			case inSubject && current == "li":
				content.Keywords = append(content.Keywords, text)
			case current == "Instructions":
				content.Instructions = text
			}
		}
	}
	return content, nil
}

// writeSidecar merges the result into any existing sidecar and writes it
// atomically. Append mode preserves existing keywords; overwrite replaces
// them. Either way the written keyword list is duplicate-free, so repeated
// commits of the same result do not grow the sidecar.
func writeSidecar(sourcePath string, result FinalResult, appendKeywords bool) (string, error) {
	path := SidecarPath(sourcePath)
	content := sidecarContent{}
	if appendKeywords {
		existing, err := readSidecar(path)
		if err != nil {
			return "", err
		}
		content = existing
	}

	content.Keywords = mergeKeywords(content.Keywords, result.Keywords())
	if instructions := result.Instructions(); instructions != "" {
		content.Instructions = instructions
	}

	encoded, err := renderSidecar(content)
	if err != nil {
		return "", err
	}
	if err := fileutil.WriteFileAtomic(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("sidecar write: %w", err)
	}
	return path, nil
}

func mergeKeywords(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	var merged []string
	for _, keyword := range append(append([]string(nil), existing...), added...) {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if _, dup := seen[keyword]; dup {
			continue
		}
		seen[keyword] = struct{}{}
		merged = append(merged, keyword)
	}
	return merged
}
