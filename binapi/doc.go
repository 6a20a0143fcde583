// Package binapi groups the message sets understood by the engine. Each
// sub-package declares request, reply and notification types, the callback
// capability interfaces a handler may implement to receive them, and
// registers everything with the api catalog at init time. Importing a
// sub-package (even with a blank import) is enough to make its messages
// encodable and dispatchable.
package binapi
