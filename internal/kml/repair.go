// Package kml repairs malformed KML documents that lack a root <kml>
// element, a common defect in files exported by hand or by older tools.
package kml

import (
	"io"
	"regexp"
)

// RootStartTag is the canonical root element inserted into repaired
// documents.
const RootStartTag = `<kml xmlns="http://www.opengis.net/kml/2.2" ` +
	`xmlns:gx="http://www.google.com/kml/ext/2.2" ` +
	`xmlns:kml="http://www.opengis.net/kml/2.2" ` +
	`xmlns:atom="http://www.w3.org/2005/Atom">`

const rootEndTag = "</kml>"

const documentTag = "<Document>"

// malformedPattern matches an XML prologue immediately followed by a bare
// <Document> element with no enclosing <kml> root.
var malformedPattern = regexp.MustCompile(`(?m)^\s*<\?xml[^>]+>\s*<Document>`)

// probeSize bounds how much of the stream is inspected for the malformed
// signature. The pattern is never matched across the probe boundary.
const probeSize = 4096

// Repair copies src to dst in a single forward pass. When the first probe of
// the stream matches the malformed signature, the canonical root tag is
// inserted immediately before <Document> and a closing </kml> is appended
// after the remaining bytes; otherwise the stream is copied verbatim.
func Repair(dst io.Writer, src io.Reader) error {
	probe := make([]byte, probeSize)
	n, err := io.ReadFull(src, probe)
	if err == io.EOF {
		return nil
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return err
	}
	probe = probe[:n]

	needClose := false
	if loc := malformedPattern.FindIndex(probe); loc != nil {
		insert := loc[1] - len(documentTag)
		if _, err := dst.Write(probe[:insert]); err != nil {
			return err
		}
		if _, err := io.WriteString(dst, RootStartTag); err != nil {
			return err
		}
		if _, err := dst.Write(probe[insert:]); err != nil {
			return err
		}
		needClose = true
	} else {
		if _, err := dst.Write(probe); err != nil {
			return err
		}
	}

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	if needClose {
		if _, err := io.WriteString(dst, rootEndTag); err != nil {
			return err
		}
	}
	return nil
}
