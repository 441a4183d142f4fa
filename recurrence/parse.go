package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ParseRule builds a Rule from an RFC 5545 recurrence rule such as
// "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE". A leading "RRULE:" or "EXRULE:" is
// accepted. A floating UNTIL is read in loc.
func ParseRule(s string, loc *time.Location) (Rule, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "RRULE:")
	s = strings.TrimPrefix(s, "EXRULE:")

	opt, err := rrule.StrToROptionInLocation(s, loc)
	if err != nil {
		return Rule{}, fmt.Errorf("parse rule %q: %w", s, err)
	}

	if len(opt.Bysetpos)+len(opt.Bymonth)+len(opt.Bymonthday)+len(opt.Byyearday)+
		len(opt.Byweekno)+len(opt.Byhour)+len(opt.Byminute)+len(opt.Bysecond)+len(opt.Byeaster) > 0 {
		return Rule{}, fmt.Errorf("parse rule %q: only BYDAY filters are supported", s)
	}

	rule := Rule{
		Frequency: Frequency(opt.Freq),
		Interval:  opt.Interval,
		Count:     opt.Count,
		Until:     opt.Until,
	}
	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return Rule{}, fmt.Errorf("parse rule %q: positional BYDAY %s is not supported", s, wd)
		}
		rule.ByWeekday = append(rule.ByWeekday, Weekday(wd.Day()))
	}
	return rule, nil
}

// String renders the rule in RFC 5545 form. ParseRule reads it back.
func (rule Rule) String() string {
	opt := rrule.ROption{
		Freq:     rrule.Frequency(rule.Frequency),
		Interval: rule.Interval,
		Count:    rule.Count,
		Until:    rule.Until,
	}
	for _, wd := range rule.ByWeekday {
		if wd >= Monday && wd <= Sunday {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
		}
	}
	return opt.RRuleString()
}
