package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/virshlab/virshlab/pkg/clone"
)

// operationResponse is the generic body for lifecycle and delete endpoints.
type operationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	VMName  string `json:"vm_name,omitempty"`
}

// linkedCloneRequest is the linked-clone endpoint body. DiskTarget and
// ConnectionURI are pointers so an absent field, an explicitly empty field
// and a populated field stay distinguishable for positional argument
// construction.
type linkedCloneRequest struct {
	NewVMName     string  `json:"new_vm_name"`
	DiskTarget    *string `json:"disk_target"`
	ConnectionURI *string `json:"connection_uri"`
}

type linkedCloneResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	SourceVM  string  `json:"source_vm"`
	NewVMName string  `json:"new_vm_name"`
	DiskPath  *string `json:"disk_path"`
}

// connURI pulls the optional per-request connection URI override.
func connURI(r *http.Request) string {
	return r.URL.Query().Get("connection_uri")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "virshlab API",
		"version": s.version,
		"endpoints": map[string]string{
			"list_vms":     "/api/v1/vms",
			"vm_status":    "/api/v1/vms/{vm_name}/status",
			"interfaces":   "/api/v1/vms/{vm_name}/interfaces",
			"disks":        "/api/v1/vms/{vm_name}/disks",
			"console":      "/api/v1/vms/{vm_name}/console",
			"power_on":     "/api/v1/vms/{vm_name}/start",
			"power_off":    "/api/v1/vms/{vm_name}/shutdown",
			"force_off":    "/api/v1/vms/{vm_name}/destroy",
			"reboot":       "/api/v1/vms/{vm_name}/reboot",
			"pause":        "/api/v1/vms/{vm_name}/pause",
			"resume":       "/api/v1/vms/{vm_name}/resume",
			"linked_clone": "/api/v1/vms/{vm_name}/linked-clone",
			"delete_vm":    "/api/v1/vms/{vm_name}",
			"pools":        "/api/v1/pools",
			"pool_info":    "/api/v1/pools/{pool_name}",
		},
	})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.pools.ListPools(r.Context(), connURI(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(pools),
		"pools": pools,
	})
}

func (s *Server) handlePoolInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.pools.PoolInfo(r.Context(), connURI(r), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	vms, err := s.vms.List(r.Context(), connURI(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Optional case-insensitive state filter.
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := vms[:0]
		for _, vm := range vms {
			if strings.EqualFold(vm.State, state) {
				filtered = append(filtered, vm)
			}
		}
		vms = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(vms),
		"vms":   vms,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.vms.Status(r.Context(), connURI(r), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ifaces, err := s.vms.InterfaceAddresses(r.Context(), connURI(r), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vm_name":    name,
		"count":      len(ifaces),
		"interfaces": ifaces,
	})
}

func (s *Server) handleDisks(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	disks, err := s.vms.Disks(r.Context(), connURI(r), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vm_name": name,
		"count":   len(disks),
		"disks":   disks,
	})
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	display, err := s.vms.ConsoleDisplay(r.Context(), connURI(r), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vm_name": name,
		"console": display,
	})
}

// lifecycleHandler builds a handler delegating to a single-verb operation.
func (s *Server) lifecycleHandler(op func(ctx context.Context, uri, name string) error, messageFormat string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := op(r.Context(), connURI(r), name); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, operationResponse{
			Success: true,
			Message: fmt.Sprintf(messageFormat, name),
			VMName:  name,
		})
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.vms.Delete(r.Context(), connURI(r), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{
		Success: true,
		Message: fmt.Sprintf("VM '%s' deleted, definition and storage removed", name),
		VMName:  name,
	})
}

func (s *Server) handleLinkedClone(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body linkedCloneRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if body.NewVMName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "new_vm_name is required"})
		return
	}

	result, err := s.cloner.Create(r.Context(), clone.Request{
		SourceVM:      name,
		NewVMName:     body.NewVMName,
		DiskTarget:    body.DiskTarget,
		ConnectionURI: body.ConnectionURI,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, linkedCloneResponse{
		Success:   true,
		Message:   fmt.Sprintf("Linked clone '%s' created successfully from '%s'", body.NewVMName, name),
		SourceVM:  name,
		NewVMName: body.NewVMName,
		DiskPath:  result.DiskPath,
	})
}
