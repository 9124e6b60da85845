package virsh

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/virshlab/virshlab/pkg/executor"
)

// agentTimeout is deliberately short: a guest without a responsive agent
// should not stall the whole request for the default command timeout.
const agentTimeout = 10 * time.Second

// guestNetworkQuery is the structured command passed through virsh to the
// in-guest agent.
const guestNetworkQuery = `{"execute":"guest-network-get-interfaces"}`

// guestAgentInterfaces queries the guest agent for the live network
// configuration. It is strictly best-effort: every failure mode (agent not
// installed, guest paused, malformed reply, timeout) yields an empty slice.
func (c *Client) guestAgentInterfaces(ctx context.Context, uri, name string) []NetworkInterface {
	res, err := c.run(ctx, uri, executor.Options{Timeout: agentTimeout},
		"qemu-agent-command", name, guestNetworkQuery)
	if err != nil || res.ExitCode != 0 {
		return []NetworkInterface{}
	}
	return parseGuestAgentReply(res.Output)
}

// parseGuestAgentReply decodes the guest-network-get-interfaces JSON reply.
// One record is emitted per address entry, so an interface carrying three
// addresses yields three records sharing name and mac. The loopback
// interface is skipped. Malformed documents yield an empty slice.
func parseGuestAgentReply(raw string) []NetworkInterface {
	ifaces := []NetworkInterface{}
	if !gjson.Valid(raw) {
		return ifaces
	}

	for _, entry := range gjson.Get(raw, "return").Array() {
		name := entry.Get("name").String()
		if name == "" || name == "lo" {
			continue
		}

		var mac *string
		if hw := entry.Get("hardware-address"); hw.Exists() && hw.String() != "" {
			v := hw.String()
			mac = &v
		}

		for _, addr := range entry.Get("ip-addresses").Array() {
			ip := addr.Get("ip-address").String()
			if ip == "" {
				continue
			}

			formatted := ip
			if prefix := addr.Get("prefix"); prefix.Exists() {
				formatted = fmt.Sprintf("%s/%d", ip, prefix.Int())
			}

			iface := NetworkInterface{Name: name, MAC: mac, Address: &formatted}
			if t := addr.Get("ip-address-type").String(); t != "" {
				proto := t
				iface.Protocol = &proto
			}
			ifaces = append(ifaces, iface)
		}
	}
	return ifaces
}
