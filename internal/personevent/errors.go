package personevent

import "errors"

// ErrUnknownTag is returned by DecodeCommand/DecodeEvent when an
// envelope's tag does not match any known command or event kind.
var ErrUnknownTag = errors.New("personevent: unknown tag")
