package ruleset

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/objectplan/objectplan/internal/core"
)

// Load parses a diff rule-set document. The document shape is:
//
//	<ruleset>
//	  <type name="table" key="fqn">
//	    <attribute name="owner" rebuild="true">
//	      <dependency fqn="role.{new.owner}"/>
//	    </attribute>
//	    <element name="column" key="name" rebuild="true">
//	      <attribute name="datatype" rebuild="true"/>
//	    </element>
//	    <text rebuild="false"/>
//	  </type>
//	</ruleset>
func Load(r io.Reader) (*RuleSet, error) {
	var raw rawRuleSet
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("ruleset: %w", err)
	}
	rs := &RuleSet{Types: make(map[string]*TypeRule, len(raw.Types))}
	for _, rt := range raw.Types {
		if rt.Name == "" {
			return nil, &core.StructuralError{Context: "ruleset", Message: "<type> missing name attribute"}
		}
		if _, dup := rs.Types[rt.Name]; dup {
			return nil, &core.DuplicateIdentityError{Type: "ruleset-type", Key: rt.Name}
		}
		checks, err := convertChecks(rt.Children)
		if err != nil {
			return nil, fmt.Errorf("ruleset: type %q: %w", rt.Name, err)
		}
		rs.Types[rt.Name] = &TypeRule{Type: rt.Name, Key: rt.Key, Checks: checks}
	}
	return rs, nil
}

type rawRuleSet struct {
	XMLName xml.Name  `xml:"ruleset"`
	Types   []rawType `xml:"type"`
}

type rawType struct {
	XMLName  xml.Name  `xml:"type"`
	Name     string    `xml:"name,attr"`
	Key      string    `xml:"key,attr"`
	Children []rawNode `xml:",any"`
}

type rawNode struct {
	XMLName  xml.Name
	Name     string         `xml:"name,attr"`
	Key      string         `xml:"key,attr"`
	Fail     string         `xml:"fail,attr"`
	Msg      string         `xml:"msg,attr"`
	Rebuild  string         `xml:"rebuild,attr"`
	Dep      *rawDependency `xml:"dependency"`
	Children []rawNode      `xml:",any"`
}

type rawDependency struct {
	FQN      string `xml:"fqn,attr"`
	PQN      string `xml:"pqn,attr"`
	Old      string `xml:"old,attr"`
	Soft     string `xml:"soft,attr"`
	Optional string `xml:"optional,attr"`
}

func convertChecks(nodes []rawNode) ([]Check, error) {
	var out []Check
	for _, n := range nodes {
		switch n.XMLName.Local {
		case "attribute":
			if n.Name == "" {
				return nil, &core.StructuralError{Context: "ruleset", Message: "<attribute> missing name"}
			}
			out = append(out, &AttributeCheck{
				Name:    n.Name,
				Fail:    boolAttr(n.Fail),
				Msg:     n.Msg,
				Rebuild: boolAttr(n.Rebuild),
				Dep:     convertDep(n.Dep),
			})
		case "element":
			if n.Name == "" {
				return nil, &core.StructuralError{Context: "ruleset", Message: "<element> missing name"}
			}
			children, err := convertChecks(n.Children)
			if err != nil {
				return nil, err
			}
			out = append(out, &ElementCheck{
				Element:  n.Name,
				KeyAttr:  n.Key,
				Rebuild:  boolAttr(n.Rebuild),
				Dep:      convertDep(n.Dep),
				Children: children,
			})
		case "text":
			out = append(out, &TextCheck{
				Rebuild: boolAttr(n.Rebuild),
				Dep:     convertDep(n.Dep),
			})
		default:
			return nil, &core.StructuralError{Context: "ruleset", Message: fmt.Sprintf("unrecognized check element <%s>", n.XMLName.Local)}
		}
	}
	return out, nil
}

func convertDep(d *rawDependency) *DepTemplate {
	if d == nil {
		return nil
	}
	return &DepTemplate{
		FQNTemplate: d.FQN,
		PQNTemplate: d.PQN,
		Old:         boolAttr(d.Old),
		Soft:        boolAttr(d.Soft),
		IsOptional:  boolAttr(d.Optional),
	}
}

func boolAttr(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
