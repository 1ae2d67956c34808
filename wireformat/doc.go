// Package wireformat defines the contract shared by guest and host builds:
// the fixed descriptor layout, the payload codec and the JSON log message
// forwarded from guest to host. Both sides must compile against the same
// version of this package; LayoutVersion is checked when a module is loaded.
package wireformat
