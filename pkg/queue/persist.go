package queue

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/dcwire/aircore/internal/ids"
	"github.com/dcwire/aircore/pkg/connmgr"
	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/tth"
)

// xmlTime formats and parses the RFC 3339 timestamps used by every
// persisted Added/Date/TimeFinished/ResumeTime attribute. A zero
// time.Time round-trips as an empty attribute rather than the Unix epoch.
type xmlTime struct {
	time.Time
}

func (t xmlTime) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if t.IsZero() {
		return xml.Attr{Name: name, Value: ""}, nil
	}
	return xml.Attr{Name: name, Value: t.UTC().Format(time.RFC3339)}, nil
}

func (t *xmlTime) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, attr.Value)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", attr.Name.Local, attr.Value, err)
	}
	t.Time = parsed
	return nil
}

type xmlSegment struct {
	Start int64 `xml:"Start,attr"`
	Size  int64 `xml:"Size,attr"`
}

type xmlSource struct {
	CID     string `xml:"CID,attr"`
	Nick    string `xml:"Nick,attr"`
	HubHint string `xml:"HubHint,attr"`
}

type xmlDownload struct {
	Target       string       `xml:"Target,attr"`
	Size         int64        `xml:"Size,attr"`
	TempTarget   string       `xml:"TempTarget,attr"`
	TTH          string       `xml:"TTH,attr"`
	Added        xmlTime      `xml:"Added,attr"`
	Priority     string       `xml:"Priority,attr"`
	MaxSegments  int          `xml:"MaxSegments,attr"`
	AutoPriority bool         `xml:"AutoPriority,attr"`
	Segments     []xmlSegment `xml:"Segment"`
	Sources      []xmlSource  `xml:"Source"`
}

type xmlFinished struct {
	Target       string  `xml:"Target,attr"`
	Size         int64   `xml:"Size,attr"`
	Added        xmlTime `xml:"Added,attr"`
	TTH          string  `xml:"TTH,attr"`
	TimeFinished xmlTime `xml:"TimeFinished,attr"`
	LastSource   string  `xml:"LastSource,attr"`
}

// xmlBundle is the persisted form of a multi-file Bundle, root element
// <Bundle>.
type xmlBundle struct {
	XMLName           xml.Name      `xml:"Bundle"`
	Version           string        `xml:"Version,attr"`
	Token             uint64        `xml:"Token,attr"`
	Target            string        `xml:"Target,attr"`
	Added             xmlTime       `xml:"Added,attr"`
	Date              xmlTime       `xml:"Date,attr"`
	Priority          string        `xml:"Priority,attr"`
	AddedByAutoSearch bool          `xml:"AddedByAutoSearch,attr"`
	ResumeTime        xmlTime       `xml:"ResumeTime,attr"`
	TimeFinished      xmlTime       `xml:"TimeFinished,attr"`
	Downloads         []xmlDownload `xml:"Download"`
	Finished          []xmlFinished `xml:"Finished"`
}

// xmlFile is the persisted form of a single-file Bundle, root element
// <File>, carrying the same attributes as <Bundle> but exactly one
// embedded <Download>.
type xmlFile struct {
	XMLName           xml.Name    `xml:"File"`
	Version           string      `xml:"Version,attr"`
	Token             uint64      `xml:"Token,attr"`
	Target            string      `xml:"Target,attr"`
	Added             xmlTime     `xml:"Added,attr"`
	Date              xmlTime     `xml:"Date,attr"`
	Priority          string      `xml:"Priority,attr"`
	AddedByAutoSearch bool        `xml:"AddedByAutoSearch,attr"`
	ResumeTime        xmlTime     `xml:"ResumeTime,attr"`
	TimeFinished      xmlTime     `xml:"TimeFinished,attr"`
	Download          xmlDownload `xml:"Download"`
}

const persistVersion = "2"

// MarshalBundle renders bundle to its on-disk XML form: a <File> document
// for single-file bundles, a <Bundle> document otherwise.
func MarshalBundle(bundle *Bundle) ([]byte, error) {
	bundle.mu.RLock()
	defer bundle.mu.RUnlock()

	downloads := make([]xmlDownload, 0, len(bundle.queue))
	for _, qi := range bundle.queue {
		downloads = append(downloads, toXMLDownload(qi))
	}
	finished := make([]xmlFinished, 0, len(bundle.finished))
	for _, qi := range bundle.finished {
		finished = append(finished, toXMLFinished(qi))
	}

	if bundle.FileBundle {
		if len(downloads) != 1 {
			return nil, fmt.Errorf("queue: file bundle %d has %d queued items, want exactly 1", bundle.Token, len(downloads))
		}
		doc := xmlFile{
			Version:           persistVersion,
			Token:             uint64(bundle.Token),
			Target:            bundle.Target,
			Added:             xmlTime{bundle.Added},
			Date:              xmlTime{bundle.RemoteDate},
			Priority:          bundle.Priority.String(),
			AddedByAutoSearch: false,
			TimeFinished:      xmlTime{},
			Download:          downloads[0],
		}
		return xml.MarshalIndent(doc, "", "  ")
	}

	doc := xmlBundle{
		Version:   persistVersion,
		Token:     uint64(bundle.Token),
		Target:    bundle.Target,
		Added:     xmlTime{bundle.Added},
		Date:      xmlTime{bundle.RemoteDate},
		Priority:  bundle.Priority.String(),
		Downloads: downloads,
		Finished:  finished,
	}
	return xml.MarshalIndent(doc, "", "  ")
}

func toXMLDownload(qi *QueueItem) xmlDownload {
	qi.mu.RLock()
	defer qi.mu.RUnlock()

	segs := make([]xmlSegment, 0, qi.downloaded.Len())
	for _, s := range qi.downloaded.Segments() {
		segs = append(segs, xmlSegment{Start: s.Start, Size: s.Length})
	}
	srcs := make([]xmlSource, 0, len(qi.sources))
	for _, s := range qi.sources {
		srcs = append(srcs, xmlSource{CID: s.User.CID, Nick: s.User.Nick, HubHint: s.HubHint})
	}

	return xmlDownload{
		Target:       qi.Target,
		Size:         qi.Size,
		TempTarget:   qi.TempTarget,
		TTH:          qi.TTH.String(),
		Added:        xmlTime{qi.Added},
		Priority:     qi.Priority.String(),
		MaxSegments:  qi.MaxSegments,
		AutoPriority: qi.AutoPriority,
		Segments:     segs,
		Sources:      srcs,
	}
}

func toXMLFinished(qi *QueueItem) xmlFinished {
	qi.mu.RLock()
	defer qi.mu.RUnlock()

	var lastSource string
	if len(qi.sources) > 0 {
		lastSource = qi.sources[len(qi.sources)-1].User.CID
	}
	return xmlFinished{
		Target:       qi.Target,
		Size:         qi.Size,
		Added:        xmlTime{qi.Added},
		TTH:          qi.TTH.String(),
		TimeFinished: xmlTime{time.Now()},
		LastSource:   lastSource,
	}
}

// UnmarshalBundle parses a persisted bundle document, detecting the root
// element to decide whether it is a single-file <File> or a multi-file
// <Bundle>.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	root, err := rootElementName(data)
	if err != nil {
		return nil, err
	}

	switch root {
	case "File":
		var doc xmlFile
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("queue: unmarshal file bundle: %w", err)
		}
		bundle := NewBundle(ids.Token(doc.Token), doc.Target, parsePriority(doc.Priority), true)
		bundle.Added = doc.Added.Time
		bundle.RemoteDate = doc.Date.Time
		item, err := fromXMLDownload(doc.Download)
		if err != nil {
			return nil, err
		}
		bundle.AddItem(item)
		return bundle, nil

	case "Bundle":
		var doc xmlBundle
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("queue: unmarshal bundle: %w", err)
		}
		bundle := NewBundle(ids.Token(doc.Token), doc.Target, parsePriority(doc.Priority), false)
		bundle.Added = doc.Added.Time
		bundle.RemoteDate = doc.Date.Time
		for _, d := range doc.Downloads {
			item, err := fromXMLDownload(d)
			if err != nil {
				return nil, err
			}
			bundle.AddItem(item)
		}
		for _, f := range doc.Finished {
			item, err := fromXMLFinished(f)
			if err != nil {
				return nil, err
			}
			bundle.AddItem(item)
			bundle.MarkFinished(item)
		}
		return bundle, nil

	default:
		return nil, fmt.Errorf("queue: unrecognized persistence root element %q", root)
	}
}

func fromXMLDownload(d xmlDownload) (*QueueItem, error) {
	sum, err := parseTTHOrZero(d.TTH)
	if err != nil {
		return nil, err
	}
	item := NewQueueItem(0, d.Target, d.TempTarget, d.Size, sum, parsePriority(d.Priority))
	item.Added = d.Added.Time
	item.MaxSegments = d.MaxSegments
	item.AutoPriority = d.AutoPriority
	for _, s := range d.Segments {
		item.downloaded.Add(segment.Segment{Start: s.Start, Length: s.Size})
	}
	for _, s := range d.Sources {
		item.sources = append(item.sources, ItemSource{
			User:    connmgr.UserIdentity{CID: s.CID, Nick: s.Nick},
			HubHint: s.HubHint,
		})
	}
	item.Status = StatusQueued
	return item, nil
}

func fromXMLFinished(f xmlFinished) (*QueueItem, error) {
	sum, err := parseTTHOrZero(f.TTH)
	if err != nil {
		return nil, err
	}
	item := NewQueueItem(0, f.Target, "", f.Size, sum, PriorityNormal)
	item.Added = f.Added.Time
	item.downloaded.Add(segment.Segment{Start: 0, Length: f.Size})
	item.Status = StatusCompleted
	return item, nil
}

func parseTTHOrZero(s string) (tth.Sum, error) {
	if s == "" {
		return tth.Sum{}, nil
	}
	sum, err := tth.ParseSum(s)
	if err != nil {
		return tth.Sum{}, fmt.Errorf("queue: parse TTH %q: %w", s, err)
	}
	return sum, nil
}

func parsePriority(s string) Priority {
	for p := PriorityPausedForce; p <= PriorityDefault; p++ {
		if p.String() == s {
			return p
		}
	}
	return PriorityNormal
}

// rootElementName returns the local name of the document's root element
// without fully decoding it, so UnmarshalBundle can pick the right target
// struct.
func rootElementName(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("queue: read root element: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}
