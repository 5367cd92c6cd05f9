package transport

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListSerialPorts returns the serial ports present on the host.
func ListSerialPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list serial ports: %w", err)
	}

	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}

	return infos, nil
}
