package enums

import "strings"

type ProductType string

const (
	ProductTypeOneTime      ProductType = "one_time"
	ProductTypeSubscription ProductType = "subscription"
)

func ParseProductType(raw string) (ProductType, bool) {
	switch ProductType(strings.ToLower(strings.TrimSpace(raw))) {
	case ProductTypeOneTime:
		return ProductTypeOneTime, true
	case ProductTypeSubscription:
		return ProductTypeSubscription, true
	default:
		return "", false
	}
}

func (t ProductType) IsSubscription() bool {
	return t == ProductTypeSubscription
}
