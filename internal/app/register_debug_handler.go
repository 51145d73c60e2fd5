// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/sensors"
)

// RegisterDevice is the raw register access the debugger needs.
type RegisterDevice interface {
	ReadRegister(reg byte) (byte, error)
	WriteRegister(reg, v byte) error
}

// RegisterRequest is one client message on the register debug socket.
type RegisterRequest struct {
	Action  string `json:"action"` // get_map, read, read_all, write
	Address string `json:"address,omitempty"`
	Value   string `json:"value,omitempty"`
}

// RegisterInfo is a register map entry as sent to the client.
type RegisterInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Access      string `json:"access"`
}

// RegisterResponse is one server message on the register debug socket.
type RegisterResponse struct {
	Type        string            `json:"type"` // register_map, read, read_all, write, error
	Device      string            `json:"device,omitempty"`
	Address     string            `json:"address,omitempty"`
	Value       string            `json:"value,omitempty"`
	Registers   map[string]string `json:"registers,omitempty"`
	RegisterMap []RegisterInfo    `json:"register_map,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// RegisterDebugSession serves one websocket client.
type RegisterDebugSession struct {
	Conn   *websocket.Conn
	Device RegisterDevice
}

// Serve runs the request loop until the client goes away.
func (s *RegisterDebugSession) Serve() {
	for {
		var req RegisterRequest
		if err := s.Conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				monitoring.Logf("register debug: websocket error: %v", err)
			}
			return
		}
		if err := s.Conn.WriteJSON(s.handle(req)); err != nil {
			monitoring.Logf("register debug: write error: %v", err)
			return
		}
	}
}

func (s *RegisterDebugSession) handle(req RegisterRequest) RegisterResponse {
	switch req.Action {
	case "get_map":
		return registerMap()
	case "read":
		addr, err := parseHexByte(req.Address)
		if err != nil {
			return errorResponse(err.Error())
		}
		v, err := s.Device.ReadRegister(addr)
		if err != nil {
			return errorResponse(fmt.Sprintf("read error: %v", err))
		}
		return RegisterResponse{
			Type:      "read",
			Device:    "mpu6050",
			Address:   hexByte(addr),
			Value:     hexByte(v),
			Timestamp: time.Now().UnixMilli(),
		}
	case "read_all":
		regs := make(map[string]string, len(sensors.MPU6050Registers))
		for _, r := range sensors.MPU6050Registers {
			v, err := s.Device.ReadRegister(r.Address)
			if err != nil {
				return errorResponse(fmt.Sprintf("read error: %v", err))
			}
			regs[hexByte(r.Address)] = hexByte(v)
		}
		return RegisterResponse{
			Type:      "read_all",
			Device:    "mpu6050",
			Registers: regs,
			Timestamp: time.Now().UnixMilli(),
		}
	case "write":
		addr, err := parseHexByte(req.Address)
		if err != nil {
			return errorResponse(err.Error())
		}
		v, err := parseHexByte(req.Value)
		if err != nil {
			return errorResponse(err.Error())
		}
		if err := s.Device.WriteRegister(addr, v); err != nil {
			return errorResponse(fmt.Sprintf("write error: %v", err))
		}
		monitoring.Logf("register debug: wrote %s to %s", hexByte(v), hexByte(addr))
		return RegisterResponse{
			Type:      "write",
			Device:    "mpu6050",
			Address:   hexByte(addr),
			Value:     hexByte(v),
			Message:   "register written",
			Timestamp: time.Now().UnixMilli(),
		}
	default:
		return errorResponse(fmt.Sprintf("unknown action: %q", req.Action))
	}
}

func registerMap() RegisterResponse {
	regs := make([]RegisterInfo, len(sensors.MPU6050Registers))
	for i, r := range sensors.MPU6050Registers {
		regs[i] = RegisterInfo{
			Address:     hexByte(r.Address),
			Name:        r.Name,
			Description: r.Description,
			Access:      r.Access,
		}
	}
	return RegisterResponse{Type: "register_map", Device: "mpu6050", RegisterMap: regs}
}

func errorResponse(msg string) RegisterResponse {
	return RegisterResponse{Type: "error", Message: msg}
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}

func parseHexByte(s string) (byte, error) {
	var v byte
	if _, err := fmt.Sscanf(s, "0x%X", &v); err != nil {
		return 0, fmt.Errorf("invalid hex byte %q", s)
	}
	return v, nil
}
