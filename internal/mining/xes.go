package mining

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// XESContentType is the media type of rendered logs.
const XESContentType = "application/xml"

const xesTimeLayout = "2006-01-02T15:04:05.000-07:00"

type xesLog struct {
	XMLName     xml.Name        `xml:"log"`
	Version     string          `xml:"xes.version,attr"`
	Features    string          `xml:"xes.features,attr"`
	Extensions  []xesExtension  `xml:"extension"`
	Globals     []xesGlobal     `xml:"global"`
	Classifiers []xesClassifier `xml:"classifier"`
	Attrs       []xesAttr
	Traces      []xesTrace `xml:"trace"`
}

type xesExtension struct {
	Name   string `xml:"name,attr"`
	Prefix string `xml:"prefix,attr"`
	URI    string `xml:"uri,attr"`
}

type xesGlobal struct {
	Scope string `xml:"scope,attr"`
	Attrs []xesAttr
}

type xesClassifier struct {
	Name string `xml:"name,attr"`
	Keys string `xml:"keys,attr"`
}

type xesTrace struct {
	Attrs  []xesAttr
	Events []xesEvent `xml:"event"`
}

type xesEvent struct {
	Attrs []xesAttr
}

// xesAttr renders as <string .../> or <date .../> depending on XMLName.
type xesAttr struct {
	XMLName xml.Name
	Key     string `xml:"key,attr"`
	Value   string `xml:"value,attr"`
}

func stringAttr(key, value string) xesAttr {
	return xesAttr{XMLName: xml.Name{Local: "string"}, Key: key, Value: value}
}

func dateAttr(key string, t time.Time) xesAttr {
	return xesAttr{XMLName: xml.Name{Local: "date"}, Key: key, Value: t.Format(xesTimeLayout)}
}

var xesExtensions = []xesExtension{
	{Name: "Concept", Prefix: "concept", URI: "http://www.xes-standard.org/concept.xesext"},
	{Name: "Time", Prefix: "time", URI: "http://www.xes-standard.org/time.xesext"},
	{Name: "Lifecycle", Prefix: "lifecycle", URI: "http://www.xes-standard.org/lifecycle.xesext"},
}

func xesGlobals() []xesGlobal {
	return []xesGlobal{
		{Scope: "trace", Attrs: []xesAttr{stringAttr("concept:name", "__INVALID__")}},
		{Scope: "event", Attrs: []xesAttr{
			stringAttr("concept:name", "__INVALID__"),
			dateAttr("time:timestamp", time.Unix(0, 0).UTC()),
			stringAttr("lifecycle:transition", "complete"),
		}},
	}
}

// WriteXES renders the log as an XES document.
func (l *Log) WriteXES(w io.Writer) error {
	doc := xesLog{
		Version:     "1.0",
		Features:    "nested-attributes",
		Extensions:  xesExtensions,
		Globals:     xesGlobals(),
		Classifiers: []xesClassifier{{Name: "Activity", Keys: "concept:name"}},
		Attrs:       []xesAttr{stringAttr("concept:name", l.Workflow.String())},
	}
	for _, t := range l.Traces {
		trace := xesTrace{Attrs: []xesAttr{stringAttr("concept:name", t.Case.String())}}
		for _, e := range t.Events {
			trace.Events = append(trace.Events, xesEvent{Attrs: []xesAttr{
				stringAttr("concept:name", string(e.Label)),
				dateAttr("time:timestamp", e.Timestamp),
				stringAttr("lifecycle:transition", "complete"),
			}})
		}
		doc.Traces = append(doc.Traces, trace)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xes header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode xes: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode xes: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
