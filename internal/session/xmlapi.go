package session

import (
	"encoding/xml"
	"fmt"
)

// The --xmlapi document layout:
//
//	<Response app="si" command="sandboxes">
//	  <WorkItems>
//	    <WorkItem id="..." context="..." modelType="si.Sandbox">
//	      <Field name="SandboxName"><Value dataType="string">/ws/project.pj</Value></Field>
//	      <Field name="BuildRevision"><Item id="1.4" modelType="si.Revision"/></Field>
//	      <Result><Message>...</Message></Result>
//	    </WorkItem>
//	  </WorkItems>
//	  <Exception class="..."><Message>...</Message></Exception>
//	</Response>
type xmlResponse struct {
	XMLName   xml.Name      `xml:"Response"`
	App       string        `xml:"app,attr"`
	Command   string        `xml:"command,attr"`
	WorkItems []xmlWorkItem `xml:"WorkItems>WorkItem"`
	Exception *xmlException `xml:"Exception"`
}

type xmlWorkItem struct {
	ID        string     `xml:"id,attr"`
	Context   string     `xml:"context,attr"`
	ModelType string     `xml:"modelType,attr"`
	Fields    []xmlField `xml:"Field"`
	Result    *xmlResult `xml:"Result"`
}

type xmlField struct {
	Name  string    `xml:"name,attr"`
	Value *xmlValue `xml:"Value"`
	Item  *xmlItem  `xml:"Item"`
}

type xmlValue struct {
	DataType string `xml:"dataType,attr"`
	Text     string `xml:",chardata"`
}

type xmlItem struct {
	ID        string `xml:"id,attr"`
	ModelType string `xml:"modelType,attr"`
}

type xmlResult struct {
	Message string `xml:"Message"`
}

type xmlException struct {
	Class   string `xml:"class,attr"`
	Message string `xml:"Message"`
}

// DecodeResponse parses an --xmlapi response document. The exit code is not
// part of the document and is left at zero.
func DecodeResponse(data []byte) (*Response, error) {
	var doc xmlResponse
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	resp := &Response{
		App:       doc.App,
		Command:   doc.Command,
		WorkItems: make([]WorkItem, 0, len(doc.WorkItems)),
	}
	if doc.Exception != nil {
		resp.Exception = doc.Exception.Message
	}

	for _, wi := range doc.WorkItems {
		item := WorkItem{
			ID:        wi.ID,
			Context:   wi.Context,
			ModelType: wi.ModelType,
			Fields:    make(map[string]Field, len(wi.Fields)),
		}
		for _, f := range wi.Fields {
			field := Field{Name: f.Name}
			switch {
			case f.Item != nil:
				field.Item = &Item{ID: f.Item.ID, ModelType: f.Item.ModelType}
			case f.Value == nil || f.Value.DataType == "null":
				field.Null = true
			default:
				field.Value = f.Value.Text
			}
			item.Fields[f.Name] = field
		}
		if wi.Result != nil {
			item.Result = &Result{Message: wi.Result.Message}
		}
		resp.WorkItems = append(resp.WorkItems, item)
	}
	return resp, nil
}
