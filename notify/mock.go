package notify

import (
	"bytes"
	"context"
	"sync"
	"text/template"
)

// Mock sends message into a string slice in memory. It implements Sender
// interface. Useful mostly for testing.
type Mock struct {
	sync.Mutex
	buf *[]string
}

// NewMock initialized Mock for given string slice buffor.
func NewMock(buffor *[]string) *Mock {
	return &Mock{buf: buffor}
}

// Send sends a message onto internal Mock buffor.
func (m *Mock) Send(_ context.Context, tmpl Template, data MsgData) error {
	var msgBuff bytes.Buffer
	if err := tmpl.Execute(&msgBuff, data); err != nil {
		return err
	}
	m.Lock()
	*m.buf = append(*m.buf, msgBuff.String())
	m.Unlock()
	return nil
}

// MockTemplate returns parsed template with given name, which renders mock
// message using all fields of MsgData.
func MockTemplate(name string) Template {
	return template.Must(template.New(name).Parse(`
[{{.Tenant}}] [{{.RunId}}] [{{.DagName}}]{{if .TaskName}} [{{.TaskName}}]{{end}}:
	{{.PrevStatus}} -> {{.Status}}
	{{- if .Reason}}
	Got error: {{.Reason.Error}}
	{{- end}}
`))
}
