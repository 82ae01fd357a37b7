package workflow

import (
	"encoding/xml"
	"fmt"
	"maps"
	"path"
	"slices"

	"github.com/nfrund/scriptdesk/internal/domain"
)

// ScriptAction is the name of the node that runs the script.
const ScriptAction = "script"

// Definition is a workflow.xml document with a single script action.
type Definition struct {
	XMLName xml.Name   `xml:"workflow-app"`
	Xmlns   string     `xml:"xmlns,attr"`
	Name    string     `xml:"name,attr"`
	Start   transition `xml:"start"`
	Action  actionNode `xml:"action"`
	Kill    killNode   `xml:"kill"`
	End     namedNode  `xml:"end"`
}

type transition struct {
	To string `xml:"to,attr"`
}

type namedNode struct {
	Name string `xml:"name,attr"`
}

type killNode struct {
	Name    string `xml:"name,attr"`
	Message string `xml:"message"`
}

type actionNode struct {
	Name  string      `xml:"name,attr"`
	Shell shellAction `xml:"shell"`
	OK    transition  `xml:"ok"`
	Error transition  `xml:"error"`
}

type shellAction struct {
	Xmlns         string         `xml:"xmlns,attr"`
	JobTracker    string         `xml:"job-tracker"`
	NameNode      string         `xml:"name-node"`
	Configuration *configuration `xml:"configuration,omitempty"`
	Exec          string         `xml:"exec"`
	Arguments     []string       `xml:"argument"`
	Files         []string       `xml:"file"`
}

// ScriptFile returns the deployed file name of a script written in language.
func ScriptFile(language string) string {
	switch language {
	case "tengo":
		return "script.tengo"
	case "lua":
		return "script.lua"
	case "python":
		return "script.py"
	case "scala":
		return "script.scala"
	}
	return "script"
}

// NewDefinition builds the workflow for sub. Hadoop properties become the
// action's configuration, parameters its arguments and resources its files.
func NewDefinition(sub *domain.Submission) *Definition {
	exec := ScriptFile(sub.Language)
	files := append([]string{path.Join(sub.AppPath, exec) + "#" + exec}, sub.Resources...)

	var conf *configuration
	if len(sub.Properties) > 0 {
		conf = &configuration{}
		for _, k := range slices.Sorted(maps.Keys(sub.Properties)) {
			conf.Properties = append(conf.Properties, property{Name: k, Value: sub.Properties[k]})
		}
	}

	name := sub.AppName
	if name == "" {
		name = AppName
	}

	return &Definition{
		Xmlns: "uri:oozie:workflow:0.5",
		Name:  name,
		Start: transition{To: ScriptAction},
		Action: actionNode{
			Name: ScriptAction,
			Shell: shellAction{
				Xmlns:         "uri:oozie:shell-action:0.2",
				JobTracker:    "${jobTracker}",
				NameNode:      "${nameNode}",
				Configuration: conf,
				Exec:          exec,
				Arguments:     slices.Clone(sub.Parameters),
				Files:         files,
			},
			OK:    transition{To: "end"},
			Error: transition{To: "kill"},
		},
		Kill: killNode{Name: "kill", Message: "Action failed, error message[${wf:errorMessage(wf:lastErrorNode())}]"},
		End:  namedNode{Name: "end"},
	}
}

// Marshal renders the definition as an indented XML document.
func (d *Definition) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow definition: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Actions returns the action nodes of the definition in the state they have
// before the job starts.
func (d *Definition) Actions(jobID string) []domain.JobAction {
	return []domain.JobAction{{
		ID:     jobID + "@" + d.Action.Name,
		Name:   d.Action.Name,
		Type:   "shell",
		Status: "PREP",
	}}
}
