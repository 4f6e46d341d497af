package billing

import "time"

// RemoteBillState is what Multibank reports for a bill number.
// It is either RemoteFound or RemoteMissing.
type RemoteBillState interface {
	isRemoteBillState()
}

// RemoteFound carries the Multibank copy of a bill
type RemoteFound struct {
	Amount  int64
	Flag    FlagStatus
	DueDate *time.Time
}

// RemoteMissing means Multibank has no bill with that number
type RemoteMissing struct{}

func (RemoteFound) isRemoteBillState()   {}
func (RemoteMissing) isRemoteBillState() {}

// IsPaid reports whether Multibank already settled the bill
func (r RemoteFound) IsPaid() bool {
	return r.Flag == FlagPaid
}

// RemoteBill is the payload used to create a bill on Multibank
type RemoteBill struct {
	BillIssueID    int64
	BillGroupID    int64
	Amount         int64
	IdentityNumber string
	Semester       int
	Name           string
	Flag           FlagStatus
	DueDate        *time.Time
}

// RemoteBillFrom builds the Multibank payload for bill
func RemoteBillFrom(b *Bill) RemoteBill {
	return RemoteBill{
		BillIssueID:    b.BillIssueID,
		BillGroupID:    b.BillGroupID,
		Amount:         b.Amount,
		IdentityNumber: b.IdentityNumber,
		Semester:       b.Semester,
		Name:           b.Name,
		Flag:           b.FlagStatus,
		DueDate:        b.DueDate,
	}
}

// RemoteUpdate is the payload used to edit a bill on Multibank
type RemoteUpdate struct {
	Amount  int64
	DueDate *time.Time
	Flag    FlagStatus
}
