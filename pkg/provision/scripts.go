package provision

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"text/template"

	"github.com/cuemby/stevedore/pkg/bundle"
	"github.com/cuemby/stevedore/pkg/types"
)

//go:embed scripts/*.sh
var scriptsFS embed.FS

const defaultConsulVersion = "1.19"

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// Data is what a provisioning script template sees
type Data struct {
	Cluster  *types.Cluster
	Node     *types.Node
	Managers []*types.Node

	Docker types.DockerSettings
	Consul types.ConsulSettings
	Vault  types.VaultSettings
	Proxy  types.ProxySettings

	// Labels are the node's labels as sorted key=value pairs
	Labels []string

	// JoinAddress is the swarm manager address joining nodes dial
	JoinAddress string
}

// NewData builds template data for node n of def
func NewData(def *types.Cluster, n *types.Node) Data {
	d := Data{
		Cluster:  def,
		Node:     n,
		Managers: def.Managers(),
		Docker:   def.Docker,
		Consul:   def.Consul,
		Vault:    def.Vault,
		Proxy:    def.Proxy,
	}
	if d.Consul.Version == "" {
		d.Consul.Version = defaultConsulVersion
	}
	for k, v := range n.Labels {
		d.Labels = append(d.Labels, k+"="+v)
	}
	sort.Strings(d.Labels)
	return d
}

// Names lists the embedded scripts
func Names() []string {
	entries, err := fs.ReadDir(scriptsFS, "scripts")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// Render executes the named script template
func Render(name string, data Data) (string, error) {
	content, err := scriptsFS.ReadFile(path.Join("scripts", name))
	if err != nil {
		return "", fmt.Errorf("failed to read script %s: %w", name, err)
	}

	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse script %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render script %s: %w", name, err)
	}
	return buf.String(), nil
}

// Script renders name into a bundle that runs it, with files staged alongside
func Script(name string, data Data, files ...bundle.File) (*bundle.Bundle, error) {
	text, err := Render(name, data)
	if err != nil {
		return nil, err
	}
	b := bundle.New("./" + name)
	if err := b.AddScript(name, text); err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := b.AddFile(f.Name, f.Data, f.Executable, f.Mode); err != nil {
			return nil, err
		}
	}
	return b, nil
}
