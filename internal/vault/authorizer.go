package vault

// AllowList is an Authorizer backed by static address lists. Managers are
// implicitly rebalancers.
type AllowList struct {
	managers    map[string]struct{}
	rebalancers map[string]struct{}
}

// NewAllowList builds an AllowList from the configured addresses.
func NewAllowList(managers, rebalancers []string) *AllowList {
	a := &AllowList{
		managers:    make(map[string]struct{}, len(managers)),
		rebalancers: make(map[string]struct{}, len(rebalancers)),
	}
	for _, m := range managers {
		a.managers[m] = struct{}{}
	}
	for _, r := range rebalancers {
		a.rebalancers[r] = struct{}{}
	}
	return a
}

func (a *AllowList) CanManage(caller string) bool {
	_, ok := a.managers[caller]
	return ok
}

func (a *AllowList) CanRebalance(caller string) bool {
	if _, ok := a.rebalancers[caller]; ok {
		return true
	}
	_, ok := a.managers[caller]
	return ok
}
