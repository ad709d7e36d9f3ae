package controller

import (
	"encoding/json"
	"sort"
	"time"
)

// Traffic is one sample of the /traffic endpoint. Any field may be nil when
// the controller omitted it; numbers keep their original textual form.
type Traffic struct {
	Up        *json.Number `json:"up" yaml:"up"`
	Down      *json.Number `json:"down" yaml:"down"`
	UpTotal   *json.Number `json:"upTotal" yaml:"upTotal"`
	DownTotal *json.Number `json:"downTotal" yaml:"downTotal"`
}

// Proxy is a single entry of the /proxies mapping. Fields the controller did
// not send (or sent with another JSON type) are nil.
type Proxy struct {
	Name string   `json:"name" yaml:"name"`
	Type *string  `json:"type" yaml:"type"`
	Now  *string  `json:"now" yaml:"now"`
	All  []string `json:"all,omitempty" yaml:"all,omitempty"`
}

// Proxies maps proxy or group name to its entry.
type Proxies map[string]Proxy

// Sorted returns the entries ordered by name.
func (p Proxies) Sorted() []Proxy {
	out := make([]Proxy, 0, len(p))
	for _, v := range p {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type ConnectionMetadata struct {
	Network         string `json:"network" yaml:"network"`
	Type            string `json:"type" yaml:"type"`
	SourceIP        string `json:"sourceIP" yaml:"sourceIP"`
	DestinationIP   string `json:"destinationIP" yaml:"destinationIP"`
	SourcePort      string `json:"sourcePort" yaml:"sourcePort"`
	DestinationPort string `json:"destinationPort" yaml:"destinationPort"`
	Host            string `json:"host" yaml:"host"`
	Process         string `json:"process,omitempty" yaml:"process,omitempty"`
	ProcessPath     string `json:"processPath,omitempty" yaml:"processPath,omitempty"`
}

// Connection is one active connection from /connections.
type Connection struct {
	ID          string             `json:"id" yaml:"id"`
	Metadata    ConnectionMetadata `json:"metadata" yaml:"metadata"`
	Upload      int64              `json:"upload" yaml:"upload"`
	Download    int64              `json:"download" yaml:"download"`
	Start       time.Time          `json:"start" yaml:"start"`
	Chains      []string           `json:"chains" yaml:"chains"` // innermost proxy first
	Rule        string             `json:"rule" yaml:"rule"`
	RulePayload string             `json:"rulePayload" yaml:"rulePayload"`
}

type Connections struct {
	DownloadTotal int64        `json:"downloadTotal" yaml:"downloadTotal"`
	UploadTotal   int64        `json:"uploadTotal" yaml:"uploadTotal"`
	Connections   []Connection `json:"connections" yaml:"connections"`
}

type Version struct {
	Version string `json:"version" yaml:"version"`
	Premium bool   `json:"premium,omitempty" yaml:"premium,omitempty"`
	Meta    bool   `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Configs is the subset of /configs this tool reads. Absent fields are nil.
type Configs struct {
	Mode       *string `json:"mode" yaml:"mode"`
	LogLevel   *string `json:"log-level,omitempty" yaml:"log-level,omitempty"`
	AllowLan   *bool   `json:"allow-lan,omitempty" yaml:"allow-lan,omitempty"`
	Port       *int    `json:"port,omitempty" yaml:"port,omitempty"`
	SocksPort  *int    `json:"socks-port,omitempty" yaml:"socks-port,omitempty"`
	MixedPort  *int    `json:"mixed-port,omitempty" yaml:"mixed-port,omitempty"`
	RedirPort  *int    `json:"redir-port,omitempty" yaml:"redir-port,omitempty"`
	TProxyPort *int    `json:"tproxy-port,omitempty" yaml:"tproxy-port,omitempty"`
}

// Groups returns the entries that have candidates, i.e. proxy groups,
// ordered by name.
func (p Proxies) Groups() []Proxy {
	var out []Proxy
	for _, v := range p.Sorted() {
		if len(v.All) > 0 {
			out = append(out, v)
		}
	}
	return out
}
