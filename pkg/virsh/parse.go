package virsh

import (
	"strconv"
	"strings"
)

// tableRows returns the data rows of a virsh table, skipping the two header
// lines and any blank lines.
func tableRows(output string) []string {
	lines := strings.Split(output, "\n")
	if len(lines) <= 2 {
		return nil
	}
	var rows []string
	for _, line := range lines[2:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, line)
	}
	return rows
}

// ParseVMList parses 'virsh list --all' output. Row order is preserved.
// Shut-off domains have no id; a non-numeric leading token yields a nil ID.
// Rows without a resolvable name are skipped.
func ParseVMList(output string) []VM {
	vms := []VM{}
	for _, row := range tableRows(output) {
		fields := strings.Fields(row)
		if len(fields) < 2 {
			continue
		}

		var id *int
		if n, err := strconv.Atoi(fields[0]); err == nil {
			id = &n
		}

		name := fields[1]
		state := StateUnknown
		if len(fields) > 2 {
			// The state column may itself contain spaces ("shut off").
			state = strings.Join(fields[2:], " ")
		}

		vms = append(vms, VM{ID: id, Name: name, State: state})
	}
	return vms
}

// ParseDomInfo parses 'virsh dominfo' key/value output into a lookup map.
// Keys are lowercased with spaces collapsed to underscores ("Max memory"
// becomes "max_memory"). Only the first colon splits a line.
func ParseDomInfo(output string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
		if key == "" {
			continue
		}
		info[key] = strings.TrimSpace(value)
	}
	return info
}

// parseOptionalInt converts dominfo numeric telemetry. Sentinel markers and
// values that fail to parse yield nil rather than an error; malformed
// telemetry must never abort a request.
func parseOptionalInt(s string) *int {
	if s == "" || s == "-" || s == "-1" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// statusFromDomInfo assembles a Status from a parsed dominfo map. The name
// argument is the fallback when the tool omitted the name field.
func statusFromDomInfo(name string, info map[string]string) Status {
	st := Status{
		Name:      name,
		State:     StateUnknown,
		UUID:      info["uuid"],
		MaxMemory: info["max_memory"],
		Memory:    info["used_memory"],
		CPUTime:   info["cpu_time"],
		ID:        parseOptionalInt(info["id"]),
		VCPU:      parseOptionalInt(info["cpu(s)"]),
	}
	if v := info["name"]; v != "" {
		st.Name = v
	}
	if v := info["state"]; v != "" {
		st.State = v
	}
	return st
}

// ParseInterfaceList parses 'virsh domifaddr' output. Trailing columns are
// optional: a row carrying only a name yields nil mac, protocol and address.
func ParseInterfaceList(output string) []NetworkInterface {
	ifaces := []NetworkInterface{}
	for _, row := range tableRows(output) {
		fields := strings.Fields(row)
		if len(fields) < 1 || fields[0] == "" {
			continue
		}

		iface := NetworkInterface{Name: fields[0]}
		if len(fields) > 1 {
			iface.MAC = &fields[1]
		}
		if len(fields) > 2 {
			iface.Protocol = &fields[2]
		}
		if len(fields) > 3 {
			iface.Address = &fields[3]
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces
}

// ParseDiskList parses 'virsh domblklist' output. A dash source marks empty
// removable media and maps to nil.
func ParseDiskList(output string) []DiskMapping {
	disks := []DiskMapping{}
	for _, row := range tableRows(output) {
		fields := strings.Fields(row)
		if len(fields) < 1 || fields[0] == "" {
			continue
		}

		disk := DiskMapping{Target: fields[0]}
		if len(fields) > 1 && fields[1] != "-" {
			disk.Source = &fields[1]
		}
		disks = append(disks, disk)
	}
	return disks
}
