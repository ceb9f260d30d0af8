package device

import "sort"

// Property returns a device property
func (d *Device) Property(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.properties[key]
	return v, ok
}

// Properties returns a copy of every property
func (d *Device) Properties() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]string, len(d.properties))
	for k, v := range d.properties {
		out[k] = v
	}
	return out
}

// SetProperties stores values and reports the keys that changed. An empty
// value deletes the key.
func (d *Device) SetProperties(values map[string]string) []string {
	d.mu.Lock()
	var changed []string
	for k, v := range values {
		old, ok := d.properties[k]
		switch {
		case v == "" && ok:
			delete(d.properties, k)
		case v != "" && (!ok || old != v):
			d.properties[k] = v
		default:
			continue
		}
		changed = append(changed, k)
	}
	d.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	sort.Strings(changed)
	d.emit(func(o Observer) { o.OnPropertiesChanged(changed) })
	return changed
}

// TouchProperties reports keys as changed without storing anything, for
// properties backed by files outside the device
func (d *Device) TouchProperties(keys ...string) {
	if len(keys) == 0 {
		return
	}
	d.emit(func(o Observer) { o.OnPropertiesChanged(keys) })
}
