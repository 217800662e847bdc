package models

import "strconv"

// OrderStatus - код жизненного цикла сделки на координаторе
type OrderStatus int

const (
	// StatusUnresolved - статус еще не получен от координатора
	StatusUnresolved OrderStatus = -1

	StatusWaitingForMakerBond            OrderStatus = 0
	StatusPublic                         OrderStatus = 1
	StatusPaused                         OrderStatus = 2
	StatusWaitingForTakerBond            OrderStatus = 3
	StatusCancelled                      OrderStatus = 4
	StatusExpired                        OrderStatus = 5
	StatusWaitingForCollateralAndInvoice OrderStatus = 6
	StatusWaitingForCollateral           OrderStatus = 7
	StatusWaitingForInvoice              OrderStatus = 8
	StatusSendingFiat                    OrderStatus = 9
	StatusFiatSent                       OrderStatus = 10
	StatusInDispute                      OrderStatus = 11
	StatusCollaborativelyCancelled       OrderStatus = 12
	StatusSendingSatoshis                OrderStatus = 13
	StatusSuccessful                     OrderStatus = 14
	StatusFailedRouting                  OrderStatus = 15
	StatusWaitingDisputeResolution       OrderStatus = 16
	StatusMakerLostDispute               OrderStatus = 17
	StatusTakerLostDispute               OrderStatus = 18
)

var statusNames = map[OrderStatus]string{
	StatusUnresolved:                     "unresolved",
	StatusWaitingForMakerBond:            "waiting for maker bond",
	StatusPublic:                         "public",
	StatusPaused:                         "paused",
	StatusWaitingForTakerBond:            "waiting for taker bond",
	StatusCancelled:                      "cancelled",
	StatusExpired:                        "expired",
	StatusWaitingForCollateralAndInvoice: "waiting for trade collateral and buyer invoice",
	StatusWaitingForCollateral:           "waiting only for seller trade collateral",
	StatusWaitingForInvoice:              "waiting only for buyer invoice",
	StatusSendingFiat:                    "sending fiat",
	StatusFiatSent:                       "fiat sent",
	StatusInDispute:                      "in dispute",
	StatusCollaborativelyCancelled:       "collaboratively cancelled",
	StatusSendingSatoshis:                "sending satoshis to buyer",
	StatusSuccessful:                     "successful trade",
	StatusFailedRouting:                  "failed lightning network routing",
	StatusWaitingDisputeResolution:       "wait for dispute resolution",
	StatusMakerLostDispute:               "maker lost dispute",
	StatusTakerLostDispute:               "taker lost dispute",
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "status " + strconv.Itoa(int(s))
}

// IsFinal возвращает true для статусов, после которых сделка не продолжается
func (s OrderStatus) IsFinal() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusCollaborativelyCancelled,
		StatusSuccessful, StatusMakerLostDispute, StatusTakerLostDispute:
		return true
	default:
		return false
	}
}
