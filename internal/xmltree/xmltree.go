// Package xmltree parses the object tree input format (spec §3/§6): a
// document of flat <dbobject> elements related to one another by their
// parent attribute, each carrying optional <context> and <dependencies>
// children plus a single opaque contents subtree, into a model.Tree.
package xmltree

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/objectplan/objectplan/internal/core"
	"github.com/objectplan/objectplan/internal/model"
)

// Parse reads one object-tree document and builds a model.Tree. The
// document root may be named anything; only its <dbobject> children matter.
func Parse(r io.Reader) (*model.Tree, error) {
	var doc rawDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("xmltree: %w", err)
	}

	byFQN := make(map[model.FQN]*model.DbObject, len(doc.Objects))
	var objs []*model.DbObject
	for _, raw := range doc.Objects {
		obj, err := convertObject(raw)
		if err != nil {
			return nil, err
		}
		if obj.FQN == "" {
			return nil, &core.StructuralError{Context: "xmltree", Message: fmt.Sprintf("dbobject of type %q has no fqn", obj.Type)}
		}
		if _, dup := byFQN[obj.FQN]; dup {
			return nil, &core.DuplicateIdentityError{Type: "dbobject", Key: string(obj.FQN)}
		}
		byFQN[obj.FQN] = obj
		objs = append(objs, obj)
	}

	var roots []*model.DbObject
	for _, o := range objs {
		if o.ParentFQN == "" {
			roots = append(roots, o)
			continue
		}
		parent, ok := byFQN[o.ParentFQN]
		if !ok {
			return nil, &core.StructuralError{Context: "xmltree", Message: fmt.Sprintf("dbobject %q references unknown parent %q", o.FQN, o.ParentFQN)}
		}
		parent.Children = append(parent.Children, o)
	}
	return model.NewTree(roots)
}

type rawDoc struct {
	XMLName xml.Name
	Objects []rawObject `xml:"dbobject"`
}

type rawObject struct {
	XMLName      xml.Name         `xml:"dbobject"`
	Type         string           `xml:"type,attr"`
	FQN          string           `xml:"fqn,attr"`
	PQN          string           `xml:"pqn,attr"`
	Parent       string           `xml:"parent,attr"`
	CycleBreaker string           `xml:"cycle_breaker,attr"`
	Visit        string           `xml:"visit,attr"`
	ContentsType string           `xml:"contents-type,attr"`
	KeyAttr      string           `xml:"key_attr,attr"`
	ExtraAttrs   []xml.Attr       `xml:",any,attr"`
	Contexts     []rawContext     `xml:"context"`
	Dependencies *rawDependencies `xml:"dependencies"`
	Contents     []genericNode    `xml:",any"`
}

type rawContext struct {
	Name    string `xml:"name,attr"`
	Value   string `xml:"value,attr"`
	Default string `xml:"default,attr"`
}

type rawDependencies struct {
	Deps []rawDependency    `xml:"dependency"`
	Sets []rawDependencySet `xml:"dependency-set"`
}

type rawDependency struct {
	FQN  string `xml:"fqn,attr"`
	PQN  string `xml:"pqn,attr"`
	Old  string `xml:"old,attr"`
	Soft string `xml:"soft,attr"`
}

type rawDependencySet struct {
	Optional string          `xml:"optional,attr"`
	Deps     []rawDependency `xml:"dependency"`
}

// genericNode parses an arbitrary, object-type-specific subtree into a
// model.ContentNode-shaped generic form: attributes, text, and recursive
// children in document order. It is the only way to read the opaque
// contents every rule-set check walks, since that shape is unknown here.
type genericNode struct {
	Element    string
	Attributes map[string]string
	Text       string
	Children   []genericNode
}

func (n *genericNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	n.Element = start.Name.Local
	n.Attributes = make(map[string]string, len(start.Attr))
	for _, a := range start.Attr {
		n.Attributes[a.Name.Local] = a.Value
	}
	var text strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var child genericNode
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n.Text = strings.TrimSpace(text.String())
			return nil
		}
	}
}

func convertObject(raw rawObject) (*model.DbObject, error) {
	attrs := make(map[string]string, len(raw.ExtraAttrs)+7)
	for _, a := range raw.ExtraAttrs {
		attrs[a.Name.Local] = a.Value
	}
	attrs["type"] = raw.Type
	attrs["fqn"] = raw.FQN
	if raw.PQN != "" {
		attrs["pqn"] = raw.PQN
	}
	if raw.Parent != "" {
		attrs["parent"] = raw.Parent
	}

	deps, err := convertDependencies(raw.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("xmltree: dbobject %q: %w", raw.FQN, err)
	}

	obj := &model.DbObject{
		FQN:              model.FQN(raw.FQN),
		PQN:              model.PQN(raw.PQN),
		Type:             raw.Type,
		KeyAttr:          raw.KeyAttr,
		ParentFQN:        model.FQN(raw.Parent),
		Attributes:       attrs,
		Contents:         contentOf(raw),
		Contexts:         convertContexts(raw.Contexts),
		Dependencies:     deps,
		CycleBreakerType: raw.CycleBreaker,
		Visit:            raw.Visit != "",
	}
	return obj, nil
}

// contentOf picks the single opaque contents subtree named by contents-type
// (or the first remaining child, if contents-type was omitted) and converts
// it to a model.ContentNode.
func contentOf(raw rawObject) *model.ContentNode {
	if len(raw.Contents) == 0 {
		return &model.ContentNode{}
	}
	if raw.ContentsType != "" {
		for _, c := range raw.Contents {
			if c.Element == raw.ContentsType {
				return toContentNode(c)
			}
		}
		return &model.ContentNode{}
	}
	return toContentNode(raw.Contents[0])
}

func toContentNode(g genericNode) *model.ContentNode {
	n := &model.ContentNode{
		Element:    g.Element,
		Attributes: g.Attributes,
		Text:       g.Text,
	}
	for _, c := range g.Children {
		n.Children = append(n.Children, toContentNode(c))
	}
	return n
}

func convertContexts(raw []rawContext) []model.ContextEntry {
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.ContextEntry, len(raw))
	for i, c := range raw {
		out[i] = model.ContextEntry{Name: c.Name, Value: c.Value, Default: c.Default}
	}
	return out
}

func convertDependencies(raw *rawDependencies) (*model.DependencyBlock, error) {
	block := &model.DependencyBlock{}
	if raw == nil {
		return block, nil
	}
	for _, d := range raw.Deps {
		dep, err := convertDep(d)
		if err != nil {
			return nil, err
		}
		block.Forwards = append(block.Forwards, model.DepSet{Deps: []model.Dep{dep}})
	}
	for _, s := range raw.Sets {
		deps := make([]model.Dep, 0, len(s.Deps))
		for _, d := range s.Deps {
			dep, err := convertDep(d)
			if err != nil {
				return nil, err
			}
			deps = append(deps, dep)
		}
		// A plain <dependency-set> is an ordered list of alternatives: the
		// first that resolves wins (neither flag set). optional="true" makes
		// it a disjunction that's fine resolving to no edge at all. Nothing
		// in the input format distinguishes the is_set ("all required,
		// unioned") case; that flag is reserved for sets synthesized
		// internally by later passes.
		block.Forwards = append(block.Forwards, model.DepSet{
			Deps:       deps,
			IsOptional: boolAttr(s.Optional),
		})
	}
	return block, nil
}

func convertDep(d rawDependency) (model.Dep, error) {
	if d.FQN == "" && d.PQN == "" {
		return model.Dep{}, &core.StructuralError{Context: "xmltree", Message: "<dependency> must carry fqn or pqn"}
	}
	return model.Dep{
		FQN:  model.FQN(d.FQN),
		PQN:  model.PQN(d.PQN),
		Old:  boolAttr(d.Old),
		Soft: boolAttr(d.Soft),
	}, nil
}

func boolAttr(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
