package static

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("cellemit.static")
