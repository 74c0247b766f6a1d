package sensor

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultIIORoot is where Linux exposes industrial I/O devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// IIOADC reads in_voltageN_raw of a Linux IIO device.
type IIOADC struct {
	Root    string
	Device  int
	Channel int
}

// Path returns the sysfs attribute read by ReadRaw.
func (a *IIOADC) Path() string {
	root := a.Root
	if root == "" {
		root = DefaultIIORoot
	}
	return filepath.Join(root, fmt.Sprintf("iio:device%d", a.Device),
		fmt.Sprintf("in_voltage%d_raw", a.Channel))
}

// ReadRaw implements ADC.
func (a *IIOADC) ReadRaw(context.Context) (int, error) {
	content, err := ioutil.ReadFile(a.Path())
	if err != nil {
		return 0, err
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("iio: %s: %v", a.Path(), err)
	}
	return raw, nil
}
