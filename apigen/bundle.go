package apigen

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"text/template"

	"github.com/alc6/tabledesigner/schema"
)

var goTypes = map[schema.DataType]string{
	schema.TypeText:    "string",
	schema.TypeNumber:  "float64",
	schema.TypeDate:    "time.Time",
	schema.TypeBoolean: "bool",
}

type bundleField struct {
	GoName string
	Type   string
	Tag    string
}

type bundleType struct {
	Name   string
	Fields []bundleField
}

type bundleAPI struct {
	TypeName string
	Table    string
	Types    []bundleType
	Handler  []string
}

type bundleData struct {
	Package  string
	UsesTime bool
	APIs     []bundleAPI
}

var bundleTemplate = template.Must(template.New("bundle").Parse(`// Code generated by tabledesigner. DO NOT EDIT.

package {{ .Package }}

import (
	"context"
{{- if .UsesTime }}
	"time"
{{- end }}
)
{{ range .APIs }}
// {{ .TypeName }} API for table {{ .Table }}
{{ range .Types }}
type {{ .Name }} struct {
{{- range .Fields }}
	{{ .GoName }} {{ .Type }} ` + "`{{ .Tag }}`" + `
{{- end }}
}
{{ end }}
// {{ .TypeName }}Handler serves the generated {{ .Table }} endpoints
type {{ .TypeName }}Handler interface {
{{- range .Handler }}
	{{ . }}
{{- end }}
}
{{ end }}`))

// Bundle renders the request and response types and handler interfaces of
// every API as one gofmt-formatted Go file
func Bundle(pkg string, apis []*TableAPI) ([]byte, error) {
	if pkg == "" {
		pkg = "api"
	}

	sorted := append([]*TableAPI(nil), apis...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Table.TableName < sorted[j].Table.TableName })

	data := bundleData{Package: pkg}
	for _, api := range sorted {
		b := bundleAPI{TypeName: api.TypeName, Table: api.Table.TableName}

		entity := structOf(api.Types.Entity, false)
		create := structOf(api.Types.Create, true)
		update := structOf(api.Types.Update, true)
		update.pointerAll()
		query := bundleType{Name: api.Types.QueryParams.Name, Fields: []bundleField{
			{GoName: "Page", Type: "int", Tag: `json:"page,omitempty"`},
			{GoName: "Limit", Type: "int", Tag: `json:"limit,omitempty"`},
			{GoName: "Sort", Type: "string", Tag: `json:"sort,omitempty"`},
			{GoName: "Order", Type: "string", Tag: `json:"order,omitempty"`},
			{GoName: "Search", Type: "string", Tag: `json:"search,omitempty"`},
			{GoName: "Filters", Type: "map[string]string", Tag: `json:"-"`},
		}}
		list := bundleType{Name: api.Types.ListResponse.Name, Fields: []bundleField{
			{GoName: "Data", Type: "[]" + api.Types.Entity.Name, Tag: `json:"data"`},
			{GoName: "Total", Type: "int", Tag: `json:"total"`},
			{GoName: "Page", Type: "int", Tag: `json:"page"`},
			{GoName: "Limit", Type: "int", Tag: `json:"limit"`},
			{GoName: "TotalPages", Type: "int", Tag: `json:"total_pages"`},
		}}
		b.Types = []bundleType{entity, create, update, query, list}

		for _, t := range b.Types {
			for _, f := range t.Fields {
				if f.Type == "time.Time" || f.Type == "*time.Time" {
					data.UsesTime = true
				}
			}
		}

		n := api.TypeName
		b.Handler = []string{
			fmt.Sprintf("List%s(ctx context.Context, params %s) (*%s, error)", n, api.Types.QueryParams.Name, api.Types.ListResponse.Name),
			fmt.Sprintf("Get%sByID(ctx context.Context, id string) (*%s, error)", n, api.Types.Entity.Name),
			fmt.Sprintf("Create%s(ctx context.Context, req %s) (*%s, error)", n, api.Types.Create.Name, api.Types.Entity.Name),
			fmt.Sprintf("Update%s(ctx context.Context, id string, req %s) (*%s, error)", n, api.Types.Update.Name, api.Types.Entity.Name),
			fmt.Sprintf("Delete%s(ctx context.Context, id string) error", n),
		}
		data.APIs = append(data.APIs, b)
	}

	var buf bytes.Buffer
	if err := bundleTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render bundle: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format bundle: %w", err)
	}
	return src, nil
}

func structOf(td TypeDescriptor, optionalPointers bool) bundleType {
	bt := bundleType{Name: td.Name}
	for _, f := range td.Fields {
		typ := goTypes[f.DataType]
		tag := fmt.Sprintf(`json:"%s"`, f.Name)
		if !f.Required {
			tag = fmt.Sprintf(`json:"%s,omitempty"`, f.Name)
			if optionalPointers {
				typ = "*" + typ
			}
		}
		bt.Fields = append(bt.Fields, bundleField{GoName: f.GoName, Type: typ, Tag: tag})
	}
	return bt
}

func (bt *bundleType) pointerAll() {
	for i := range bt.Fields {
		if bt.Fields[i].Type[0] != '*' {
			bt.Fields[i].Type = "*" + bt.Fields[i].Type
		}
	}
}
