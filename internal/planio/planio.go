// Package planio serializes and deserializes a plan.Plan in the two output
// formats spec §6 describes: an XML sequence of <dbobject action="..."/>
// elements (object actions interleaved with arrive/depart navigation
// events), and a JSON mirror for tooling that prefers it.
package planio

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/objectplan/objectplan/internal/plan"
)

// WriteXML renders p as the spec's flat <dbobject action="..."/> sequence.
func WriteXML(w io.Writer, p *plan.Plan) error {
	doc := xmlPlan{
		Version:       p.Version,
		ObjectplanVer: p.ObjectplanVer,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
	for _, s := range p.Steps {
		doc.Steps = append(doc.Steps, xmlStep{
			Action: s.Action,
			Type:   s.Type,
			FQN:    s.FQN,
			Value:  s.Value,
		})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("planio: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("planio: %w", err)
	}
	return nil
}

// ReadXML parses an XML plan document previously written by WriteXML.
func ReadXML(r io.Reader) (*plan.Plan, error) {
	var doc xmlPlan
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("planio: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("planio: parsing created_at: %w", err)
	}
	p := &plan.Plan{
		Version:       doc.Version,
		ObjectplanVer: doc.ObjectplanVer,
		CreatedAt:     createdAt,
	}
	for _, s := range doc.Steps {
		p.Steps = append(p.Steps, plan.Step{
			Action: s.Action,
			Type:   s.Type,
			FQN:    s.FQN,
			Value:  s.Value,
		})
	}
	return p, nil
}

// WriteJSON renders p using its own json struct tags.
func WriteJSON(w io.Writer, p *plan.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("planio: %w", err)
	}
	return nil
}

// ReadJSON parses a JSON plan document previously written by WriteJSON.
func ReadJSON(r io.Reader) (*plan.Plan, error) {
	var p plan.Plan
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("planio: %w", err)
	}
	return &p, nil
}

type xmlPlan struct {
	XMLName       xml.Name  `xml:"plan"`
	Version       string    `xml:"version,attr"`
	ObjectplanVer string    `xml:"objectplan_version,attr"`
	CreatedAt     string    `xml:"created_at,attr"`
	Steps         []xmlStep `xml:"dbobject"`
}

type xmlStep struct {
	Action string `xml:"action,attr"`
	Type   string `xml:"type,attr,omitempty"`
	FQN    string `xml:"fqn,attr,omitempty"`
	Value  string `xml:"value,attr,omitempty"`
}
