// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package inspectors

import (
	"grimm.is/flowcore/internal/config"
	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/packet"
)

// Service is a named application on a well-known port.
type Service struct {
	Name  string
	AppID flow.AppID
}

type portKey struct {
	proto uint8
	port  uint16
}

var wellKnownPorts = map[portKey]Service{
	{ipProtoTCP, 21}:   {"ftp", 165},
	{ipProtoTCP, 22}:   {"ssh", 846},
	{ipProtoTCP, 23}:   {"telnet", 861},
	{ipProtoTCP, 25}:   {"smtp", 882},
	{ipProtoTCP, 53}:   {"dns", 617},
	{ipProtoUDP, 53}:   {"dns", 617},
	{ipProtoUDP, 67}:   {"dhcp", 606},
	{ipProtoUDP, 68}:   {"dhcp", 606},
	{ipProtoTCP, 80}:   {"http", 676},
	{ipProtoTCP, 110}:  {"pop3", 1031},
	{ipProtoUDP, 123}:  {"ntp", 818},
	{ipProtoTCP, 143}:  {"imap", 687},
	{ipProtoUDP, 161}:  {"snmp", 836},
	{ipProtoTCP, 443}:  {"https", 1122},
	{ipProtoUDP, 443}:  {"quic", 2750},
	{ipProtoTCP, 445}:  {"smb", 1205},
	{ipProtoUDP, 514}:  {"syslog", 878},
	{ipProtoTCP, 993}:  {"imaps", 689},
	{ipProtoTCP, 3306}: {"mysql", 799},
	{ipProtoTCP, 5432}: {"postgresql", 1008},
	{ipProtoTCP, 6379}: {"redis", 4044},
}

// ServiceIdentifier names a flow's service from its transport ports. Once a
// flow is identified the inspector unbinds itself from it.
type ServiceIdentifier struct {
	flow.InspectorBase
	ports map[portKey]Service
}

// NewServiceIdentifier builds the identifier from the built-in port table
// plus extra mappings, which take precedence.
func NewServiceIdentifier(extra []config.PortMapping) (*ServiceIdentifier, error) {
	ports := make(map[portKey]Service, len(wellKnownPorts)+len(extra))
	for k, v := range wellKnownPorts {
		ports[k] = v
	}
	for _, pm := range extra {
		proto, port, err := config.ParsePortKey(pm.Key)
		if err != nil {
			return nil, err
		}
		k := portKey{ipProtoTCP, port}
		if proto == "udp" {
			k.proto = ipProtoUDP
		}
		ports[k] = Service{Name: pm.Name, AppID: flow.AppID(pm.AppID)}
	}
	return &ServiceIdentifier{
		InspectorBase: flow.NewInspectorBase("service"),
		ports:         ports,
	}, nil
}

func (s *ServiceIdentifier) Slot() flow.Slot { return flow.SlotServiceID }

// Lookup returns the service registered for proto/port.
func (s *ServiceIdentifier) Lookup(proto uint8, port uint16) (Service, bool) {
	svc, ok := s.ports[portKey{proto, port}]
	return svc, ok
}

// Inspect tries the server port first, then the client port.
func (s *ServiceIdentifier) Inspect(f *flow.Flow, p *packet.Packet) error {
	if p.Proto != ipProtoTCP && p.Proto != ipProtoUDP {
		return nil
	}
	client, server := f.Endpoints()

	svc, ok := s.Lookup(p.Proto, server.Port())
	if !ok {
		svc, ok = s.Lookup(p.Proto, client.Port())
	}
	if !ok {
		return nil
	}

	_, c, pl, misc := f.ApplicationIDs()
	f.SetApplicationIDs(svc.AppID, c, pl, misc)
	f.SetAppProtocol(int16(svc.AppID))
	f.SetService(svc.Name)
	if f.ServiceIdentifier() == flow.Inspector(s) {
		f.ClearServiceIdentifier()
	}
	return nil
}
