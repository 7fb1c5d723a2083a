package dbus

import (
	"fmt"
	"os"

	godbus "github.com/godbus/dbus/v5"
	"github.com/marmos91/dittostorage/pkg/dispatch"
	"github.com/marmos91/dittostorage/pkg/provider"
	"golang.org/x/sys/unix"
)

// errLimitsExceeded is the standard bus error for throttled callers.
const errLimitsExceeded = "org.freedesktop.DBus.Error.LimitsExceeded"

// WireItem is the bus form of a provider.Item, signature (sassia{sv}).
type WireItem struct {
	ItemID    string
	ParentIDs []string
	Name      string
	ETag      string
	Type      int32
	Metadata  map[string]godbus.Variant
}

func toWireItem(item provider.Item) WireItem {
	parents := item.ParentIDs
	if parents == nil {
		parents = []string{}
	}
	md := make(map[string]godbus.Variant, len(item.Metadata))
	for k, v := range item.Metadata {
		md[k] = godbus.MakeVariant(v)
	}
	return WireItem{
		ItemID:    item.ItemID,
		ParentIDs: parents,
		Name:      item.Name,
		ETag:      item.ETag,
		Type:      int32(item.Type),
		Metadata:  md,
	}
}

func toWireItems(items []provider.Item) []WireItem {
	out := make([]WireItem, 0, len(items))
	for _, item := range items {
		out = append(out, toWireItem(item))
	}
	return out
}

// toBusError renders a marshalled error as a bus error reply. The message
// is the first body element, followed by the kind-specific fields.
func toBusError(we *dispatch.WireError) *godbus.Error {
	body := make([]any, 0, 1+len(we.Fields))
	body = append(body, we.Message)
	body = append(body, we.Fields...)
	return godbus.NewError(we.Name, body)
}

// openChannel takes ownership of a descriptor received from a client. The
// descriptor is switched to non-blocking mode so that closing the returned
// file interrupts a transfer blocked on it.
func openChannel(fd godbus.UnixFD, name string) (*os.File, error) {
	if fd < 0 {
		return nil, fmt.Errorf("invalid descriptor %d", fd)
	}
	if err := unix.SetNonblock(int(fd), true); err != nil {
		_ = unix.Close(int(fd))
		return nil, fmt.Errorf("set non-blocking: %w", err)
	}
	return os.NewFile(uintptr(fd), name), nil
}
