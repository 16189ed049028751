package checkout

import (
	"fmt"
	"time"

	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/order"
)

// CommandType names a session mutation.
type CommandType string

const (
	CmdSetOrderCourtesy    CommandType = "set_order_courtesy"
	CmdSetOnHold           CommandType = "set_on_hold"
	CmdSetItemCourtesy     CommandType = "set_item_courtesy"
	CmdStagePreset         CommandType = "stage_preset"
	CmdStageCoupon         CommandType = "stage_coupon"
	CmdStageManualDiscount CommandType = "stage_manual_discount"
	CmdApplyStagedDiscount CommandType = "apply_staged_discount"
	CmdClearDiscount       CommandType = "clear_discount"
	CmdSetTip              CommandType = "set_tip"
	CmdSetStrategy         CommandType = "set_strategy"
	CmdSetPaymentMethod    CommandType = "set_payment_method"
	CmdSetDTE              CommandType = "set_dte"
	CmdSetPerSplitDTE      CommandType = "set_per_split_dte"
	CmdConfigureEqualSplit CommandType = "configure_equal_split"
	CmdAddItemizedSplit    CommandType = "add_itemized_split"
	CmdSetSplitItems       CommandType = "set_split_items"
	CmdRemoveSplit         CommandType = "remove_split"
	CmdSetSplitAmount      CommandType = "set_split_amount"
	CmdSetSplitMethod      CommandType = "set_split_method"
	CmdSetSplitDTE         CommandType = "set_split_dte"
	CmdPaySplit            CommandType = "pay_split"
	CmdNext                CommandType = "next"
	CmdBack                CommandType = "back"
)

// Command is a single session mutation as received from the wizard.
type Command struct {
	Type       CommandType `json:"type"`
	Enabled    bool        `json:"enabled,omitempty"`
	ItemID     string      `json:"itemId,omitempty"`
	ItemIDs    []string    `json:"itemIds,omitempty"`
	SplitID    string      `json:"splitId,omitempty"`
	PresetID   string      `json:"presetId,omitempty"`
	CouponCode string      `json:"couponCode,omitempty"`
	Amount     float64     `json:"amount,omitempty"`
	TipMode    TipMode     `json:"tipMode,omitempty"`
	Count      int         `json:"count,omitempty"`
	Method     string      `json:"method,omitempty"`
	Strategy   Strategy    `json:"strategy,omitempty"`
	DTE        *order.DTE  `json:"dte,omitempty"`

	// preset is filled by the service after resolving PresetID or CouponCode.
	preset *discount.Preset
}

// WithPreset returns a copy of the command carrying a resolved preset.
func (c Command) WithPreset(p discount.Preset) Command {
	c.preset = &p
	return c
}

// Apply dispatches the command to the matching session operation.
func (s *Session) Apply(cmd Command, now time.Time) error {
	var err error
	switch cmd.Type {
	case CmdSetOrderCourtesy:
		err = s.SetOrderCourtesy(cmd.Enabled)
	case CmdSetOnHold:
		err = s.SetOnHold(cmd.Enabled)
	case CmdSetItemCourtesy:
		err = s.SetItemCourtesy(cmd.ItemID, cmd.Enabled)
	case CmdStagePreset, CmdStageCoupon:
		if cmd.preset == nil {
			return fmt.Errorf("%w: preset not resolved", discount.ErrStaleCouponOrPreset)
		}
		err = s.StagePreset(*cmd.preset)
	case CmdStageManualDiscount:
		err = s.StageManualDiscount(cmd.Amount)
	case CmdApplyStagedDiscount:
		err = s.ApplyStagedDiscount()
	case CmdClearDiscount:
		err = s.ClearDiscount()
	case CmdSetTip:
		err = s.SetTip(cmd.TipMode, cmd.Amount)
	case CmdSetStrategy:
		err = s.SetStrategy(cmd.Strategy)
	case CmdSetPaymentMethod:
		err = s.SetPaymentMethod(cmd.Method)
	case CmdSetDTE:
		err = s.SetDTE(cmd.DTE)
	case CmdSetPerSplitDTE:
		err = s.SetPerSplitDTE(cmd.Enabled)
	case CmdConfigureEqualSplit:
		err = s.ConfigureEqualSplit(cmd.Count)
	case CmdAddItemizedSplit:
		_, err = s.AddItemizedSplit(cmd.ItemIDs)
	case CmdSetSplitItems:
		err = s.SetSplitItems(cmd.SplitID, cmd.ItemIDs)
	case CmdRemoveSplit:
		err = s.RemoveSplit(cmd.SplitID)
	case CmdSetSplitAmount:
		err = s.SetSplitAmount(cmd.SplitID, cmd.Amount)
	case CmdSetSplitMethod:
		err = s.SetSplitMethod(cmd.SplitID, cmd.Method)
	case CmdSetSplitDTE:
		err = s.SetSplitDTE(cmd.SplitID, cmd.DTE)
	case CmdPaySplit:
		err = s.PaySplit(cmd.SplitID, now)
	case CmdNext:
		err = s.Next()
	case CmdBack:
		err = s.Back()
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, cmd.Type)
	}
	if err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}
