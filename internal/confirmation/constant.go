package confirmation

import "time"

type Tag string

const (
	TagConf    Tag = "conf"
	TagDetails Tag = "details"
	TagAllow   Tag = "allow"
	TagCancel  Tag = "cancel"
)

const queryTimePath = "ITwoFactorService/QueryTime/v1/"

const (
	endpointList     = "conf"
	endpointDetails  = "details/"
	endpointRespond  = "ajaxop"
	endpointMultiple = "multiajaxop"
)

const (
	DefaultKeyReuseWindow     = 5 * time.Minute
	DefaultTimeOffsetLifetime = 12 * time.Hour
	DefaultInitialDelay       = 500 * time.Millisecond
	DefaultCooldown           = time.Second
	DefaultPollTimeout        = 30 * time.Second
	DefaultHandledWindow      = 2 * time.Minute

	usedTimesLimit = 60
	handledLimit   = 256
)

const (
	report_manager_list        = "manager.list"
	report_manager_object_id   = "manager.object-id"
	report_manager_respond     = "manager.respond"
	report_manager_time_offset = "manager.time-offset"
	report_checker_poll        = "checker.poll"
	report_checker_process     = "checker.process"
	report_checker_discovered  = "checker.discovered"
)
