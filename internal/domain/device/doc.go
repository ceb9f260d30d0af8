/*
Package device models, in memory, the system services the restriction
controller consults: installed packages and users, standby buckets,
hibernation, the background restriction flag, running processes, device
properties and the consent prompt.

Device implements every restriction collaborator. Mutations made through
its methods are reported to an attached Observer after the device lock is
released, the same way the real services broadcast to the controller.

	dev := device.New(logger)
	if err := dev.Seed(manifest); err != nil { ... }
	ctl, _ := restriction.NewController(dev.Collaborators(), trackers, logger)
	dev.Attach(ctl)
*/
package device
