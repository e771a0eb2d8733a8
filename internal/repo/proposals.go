package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

func scanProposal(scan func(dest ...any) error) (domain.Proposal, error) {
	var p domain.Proposal
	var target, payload sql.NullString
	err := scan(&p.ID, &p.PactID, &p.Proposer, &p.Description, &target, &p.Value, &payload,
		&p.ForVotes, &p.AgainstVotes, &p.StartTime, &p.EndTime, &p.Executed, &p.Cancelled)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if target.Valid {
		p.Target = target.String
	}
	if payload.Valid {
		p.PayloadJSON = payload.String
	}
	return p, nil
}

const proposalColumns = `id,pact_id,proposer,description,target,value,payload_json,for_votes,against_votes,start_time,end_time,executed,cancelled`

func (r Repo) InsertProposalTx(ctx context.Context, tx *sql.Tx, p domain.Proposal) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO proposals(pact_id,proposer,description,target,value,payload_json,for_votes,against_votes,start_time,end_time,executed,cancelled)
VALUES (?,?,?,?,?,?,0,0,?,?,0,0)`,
		p.PactID, p.Proposer, p.Description, nullable(p.Target), p.Value, nullable(p.PayloadJSON), p.StartTime, p.EndTime)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetProposal(ctx context.Context, pactID string, id int64) (domain.Proposal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE pact_id=? AND id=?`, pactID, id)
	return scanProposal(row.Scan)
}

func (r Repo) GetProposalTx(ctx context.Context, tx *sql.Tx, pactID string, id int64) (domain.Proposal, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE pact_id=? AND id=?`, pactID, id)
	return scanProposal(row.Scan)
}

func (r Repo) ListProposals(ctx context.Context, pactID string) ([]domain.Proposal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE pact_id=? ORDER BY id ASC`, pactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) HasVoteTx(ctx context.Context, tx *sql.Tx, proposalID int64, voter string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM proposal_votes WHERE proposal_id=? AND voter=?`, proposalID, voter).Scan(&n)
	return n > 0, err
}

func (r Repo) InsertVoteTx(ctx context.Context, tx *sql.Tx, v domain.Vote) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO proposal_votes(proposal_id,voter,support,ts) VALUES (?,?,?,?)`,
		v.ProposalID, v.Voter, v.Support, v.TS); err != nil {
		return err
	}
	column := "against_votes"
	if v.Support {
		column = "for_votes"
	}
	_, err := tx.ExecContext(ctx, `UPDATE proposals SET `+column+`=`+column+`+1 WHERE id=?`, v.ProposalID)
	return err
}

func (r Repo) ListVotes(ctx context.Context, proposalID int64) ([]domain.Vote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT proposal_id,voter,support,ts FROM proposal_votes WHERE proposal_id=? ORDER BY ts ASC, voter ASC`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Vote
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.ProposalID, &v.Voter, &v.Support, &v.TS); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) MarkProposalExecutedTx(ctx context.Context, tx *sql.Tx, proposalID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET executed=1 WHERE id=? AND executed=0 AND cancelled=0`, proposalID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkProposalCancelledTx(ctx context.Context, tx *sql.Tx, proposalID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET cancelled=1 WHERE id=? AND executed=0 AND cancelled=0`, proposalID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
